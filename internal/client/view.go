package client

import "artfusion/internal/game"

// View is what one participant should render for a snapshot.
type View struct {
	Phase        game.Phase `json:"phase"`
	Artist       string     `json:"artist,omitempty"`
	TurnSequence int        `json:"turn_sequence"`
	IsArtist     bool       `json:"is_artist"`
	Waiting      bool       `json:"waiting"`
	VotingOpen   bool       `json:"voting_open"`
	HasVoted     bool       `json:"has_voted"`
	Complete     bool       `json:"complete"`
	Candidates   int        `json:"candidates"`
	Winner       int        `json:"winner"`
	Stale        bool       `json:"stale"`
}

// Derive is pure: the same snapshot and address always give the same view.
func Derive(snap *game.Snapshot, self string) View {
	view := View{Winner: -1}
	if snap == nil || snap.Session == nil {
		return view
	}
	session := snap.Session
	view.Phase = session.Phase
	view.TurnSequence = session.TurnSequence
	view.Artist = snap.CurrentArtist
	if view.Artist == "" {
		view.Artist = session.CurrentArtist()
	}
	view.IsArtist = self != "" && view.Artist == self
	if snap.Generation != nil {
		view.Candidates = len(snap.Generation.Images)
	}
	if _, ok := snap.Votes[self]; ok && self != "" {
		view.HasVoted = true
	}
	switch session.Phase {
	case game.PhaseDrawing:
		view.Waiting = !view.IsArtist
	case game.PhaseGenerating:
		view.Waiting = true
	case game.PhaseVoting:
		view.VotingOpen = view.Candidates > 0
	case game.PhaseComplete:
		view.Complete = true
		if snap.Final != nil {
			view.Winner = snap.Final.Winner
		}
	}
	return view
}
