package server

type EventPayload struct {
	Address        string `json:"address,omitempty"`
	Phase          string `json:"phase,omitempty"`
	Reason         string `json:"reason,omitempty"`
	TurnSequence   int    `json:"turn_sequence,omitempty"`
	NextArtist     string `json:"next_artist,omitempty"`
	CombinedPrompt string `json:"combined_prompt,omitempty"`
	Candidates     int    `json:"candidates,omitempty"`
	Degraded       bool   `json:"degraded,omitempty"`
	Candidate      *int   `json:"candidate,omitempty"`
	Winner         *int   `json:"winner,omitempty"`
	AssetID        string `json:"asset_id,omitempty"`
	Count          int    `json:"count,omitempty"`
}

const (
	eventSessionCreated    = "session_created"
	eventParticipantJoined = "participant_joined"
	eventParticipantLeft   = "participant_left"
	eventSessionStarted    = "session_started"
	eventTurnLocked        = "turn_locked"
	eventGenerationDone    = "generation_completed"
	eventGenerationFailed  = "generation_failed"
	eventVoteSubmitted     = "vote_submitted"
	eventVotingClosed      = "voting_closed"
	eventArtworkMinted     = "artwork_minted"
	eventSessionDeleted    = "session_deleted"
	eventParticipantsSwept = "participants_swept"
)
