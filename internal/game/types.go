package game

import (
	"time"
)

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseDrawing    Phase = "drawing"
	PhaseGenerating Phase = "generating"
	PhaseVoting     Phase = "voting"
	PhaseComplete   Phase = "complete"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseLobby, PhaseDrawing, PhaseGenerating, PhaseVoting, PhaseComplete:
		return true
	default:
		return false
	}
}

type Participant struct {
	Address  string    `json:"address"`
	JoinedAt time.Time `json:"joined_at"`
	Active   bool      `json:"active"`
	LastSeen time.Time `json:"last_seen"`
}

type Session struct {
	ID               string        `json:"id"`
	Phase            Phase         `json:"phase"`
	Participants     []Participant `json:"participants"`
	TurnOrder        []string      `json:"turn_order"`
	CurrentTurnIndex int           `json:"current_turn_index"`
	HostAddress      string        `json:"host_address"`
	TurnSequence     int           `json:"turn_sequence"`
	Generating       bool          `json:"generating"`
	CombinedPrompt   string        `json:"combined_prompt,omitempty"`
	CombinedImage    string        `json:"combined_image,omitempty"`
	VotingStartedAt  *time.Time    `json:"voting_started_at,omitempty"`
	Version          int64         `json:"version"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Participants = append([]Participant(nil), s.Participants...)
	out.TurnOrder = append([]string(nil), s.TurnOrder...)
	if s.VotingStartedAt != nil {
		at := *s.VotingStartedAt
		out.VotingStartedAt = &at
	}
	return &out
}

func (s *Session) Participant(address string) (*Participant, bool) {
	for i := range s.Participants {
		if s.Participants[i].Address == address {
			return &s.Participants[i], true
		}
	}
	return nil, false
}

func (s *Session) HasParticipant(address string) bool {
	_, ok := s.Participant(address)
	return ok
}

func (s *Session) InTurnOrder(address string) bool {
	for _, entry := range s.TurnOrder {
		if entry == address {
			return true
		}
	}
	return false
}

// CurrentArtist is empty outside the drawing phase.
func (s *Session) CurrentArtist() string {
	if s.Phase != PhaseDrawing {
		return ""
	}
	if s.CurrentTurnIndex < 0 || s.CurrentTurnIndex >= len(s.TurnOrder) {
		return ""
	}
	return s.TurnOrder[s.CurrentTurnIndex]
}

type DrawingTurn struct {
	SessionID   string `json:"session_id"`
	Address     string `json:"address"`
	TurnIndex   int    `json:"turn_index"`
	HasDrawn    bool   `json:"has_drawn"`
	HasPrompted bool   `json:"has_prompted"`
	HasLocked   bool   `json:"has_locked"`
	Prompt      string `json:"prompt"`
	DrawingData string `json:"drawing_data,omitempty"`
}

type TurnUpdate struct {
	HasDrawn    *bool
	Prompt      *string
	DrawingData *string
}

type GenerationResult struct {
	Images         []string  `json:"images"`
	CombinedPrompt string    `json:"combined_prompt"`
	GeneratedAt    time.Time `json:"generated_at"`
	Degraded       bool      `json:"degraded"`
}

type VoteTally map[string]int

type FinalSelection struct {
	Winner         int       `json:"winner"`
	Image          string    `json:"image"`
	CombinedPrompt string    `json:"combined_prompt"`
	Votes          VoteTally `json:"votes"`
	Counts         []int     `json:"counts"`
	CompletedAt    time.Time `json:"completed_at"`
}

type LockResult struct {
	Phase            Phase  `json:"phase"`
	TurnSequence     int    `json:"turn_sequence"`
	CurrentTurnIndex int    `json:"current_turn_index"`
	NextArtist       string `json:"next_artist,omitempty"`
	CombinedPrompt   string `json:"combined_prompt,omitempty"`
	CombinedImage    string `json:"combined_image,omitempty"`
}

type VoteResult struct {
	Votes    VoteTally       `json:"votes"`
	Complete bool            `json:"complete"`
	Final    *FinalSelection `json:"final,omitempty"`
}

type Stake struct {
	Address string `json:"address"`
	Percent int    `json:"percent"`
}

type MintRequest struct {
	SessionID      string  `json:"session_id"`
	Title          string  `json:"title"`
	Image          string  `json:"image"`
	CombinedPrompt string  `json:"combined_prompt"`
	Stakes         []Stake `json:"stakes"`
	// Contributions are the locked turns in turn order.
	Contributions []DrawingTurn `json:"contributions,omitempty"`
	Votes         VoteTally     `json:"votes,omitempty"`
}

type GenerationRequest struct {
	SessionID      string
	Prompt         string
	ReferenceImage string
	Candidates     int
}
