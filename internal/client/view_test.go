package client

import (
	"testing"

	"artfusion/internal/game"

	"github.com/stretchr/testify/assert"
)

func snapshotIn(phase game.Phase) *game.Snapshot {
	session := &game.Session{
		ID:               "s1",
		Phase:            phase,
		TurnOrder:        []string{"0xaaa", "0xbbb"},
		CurrentTurnIndex: 1,
	}
	return &game.Snapshot{Session: session, CurrentArtist: session.CurrentArtist()}
}

func TestDerive(t *testing.T) {
	voting := snapshotIn(game.PhaseVoting)
	voting.Generation = &game.GenerationResult{Images: []string{"a", "b", "c"}}
	voting.Votes = game.VoteTally{"0xaaa": 1}

	complete := snapshotIn(game.PhaseComplete)
	complete.Final = &game.FinalSelection{Winner: 2}

	tests := []struct {
		name string
		snap *game.Snapshot
		self string
		want View
	}{
		{"nil snapshot", nil, "0xaaa", View{Winner: -1}},
		{"lobby", snapshotIn(game.PhaseLobby), "0xaaa", View{Phase: game.PhaseLobby, Winner: -1}},
		{"artist", snapshotIn(game.PhaseDrawing), "0xbbb", View{Phase: game.PhaseDrawing, Artist: "0xbbb", IsArtist: true, Winner: -1}},
		{"waiting artist", snapshotIn(game.PhaseDrawing), "0xaaa", View{Phase: game.PhaseDrawing, Artist: "0xbbb", Waiting: true, Winner: -1}},
		{"generating", snapshotIn(game.PhaseGenerating), "0xbbb", View{Phase: game.PhaseGenerating, Waiting: true, Winner: -1}},
		{"voted", voting, "0xaaa", View{Phase: game.PhaseVoting, VotingOpen: true, HasVoted: true, Candidates: 3, Winner: -1}},
		{"not voted", voting, "0xbbb", View{Phase: game.PhaseVoting, VotingOpen: true, Candidates: 3, Winner: -1}},
		{"complete", complete, "0xaaa", View{Phase: game.PhaseComplete, Complete: true, Winner: 2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Derive(tc.snap, tc.self))
		})
	}
}

func TestDeriveVotingWithoutImagesIsClosed(t *testing.T) {
	view := Derive(snapshotIn(game.PhaseVoting), "0xaaa")
	assert.False(t, view.VotingOpen)
}
