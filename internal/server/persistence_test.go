package server

import (
	"context"
	"testing"
	"time"

	"artfusion/internal/config"
	"artfusion/internal/db"
	"artfusion/internal/game"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("artfusion"),
		postgres.WithUsername("artfusion"),
		postgres.WithPassword("artfusion"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("skipping test; postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	cfg := config.Default()
	cfg.DatabaseURL = dsn
	conn, err := db.Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return conn
}

func TestGormMinterIsIdempotent(t *testing.T) {
	conn := startPostgres(t)
	minter := &gormMinter{db: conn}
	ctx := context.Background()
	req := game.MintRequest{
		SessionID:      "s1",
		Title:          "Fox",
		Image:          "https://img/a.png",
		CombinedPrompt: "a fox + the moon",
		Stakes:         game.EqualStakes([]string{"0xaaa", "0xbbb", "0xccc"}),
		Contributions: []game.DrawingTurn{
			{Address: "0xaaa", TurnIndex: 0, Prompt: "a fox"},
			{Address: "0xbbb", TurnIndex: 1, Prompt: "the moon"},
		},
		Votes: game.VoteTally{"0xaaa": 0, "0xbbb": 0, "0xccc": 1},
	}

	first, err := minter.Mint(ctx, req)
	require.NoError(t, err)
	second, err := minter.Mint(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var artwork db.Artwork
	require.NoError(t, conn.Preload("Stakes").Preload("Contributions").Preload("Votes").First(&artwork, "id = ?", first).Error)
	assert.Len(t, artwork.Stakes, 3)
	assert.Len(t, artwork.Contributions, 2)
	assert.Len(t, artwork.Votes, 3)
	total := 0
	for _, stake := range artwork.Stakes {
		total += stake.Percent
	}
	assert.Equal(t, 100, total)
}

func TestEventLogRoundTrip(t *testing.T) {
	conn := startPostgres(t)
	srv := New(conn, newTestConfig(), WithGenerator(&stubGenerator{images: []string{"x"}}), WithLogger(zerolog.Nop()))
	ts := newTestServer(t, srv.Handler())
	t.Cleanup(ts.Close)

	sessionID := createSession(t, ts)
	joinParticipant(t, ts, sessionID, "0xaaa")

	events, err := srv.listEvents(context.Background(), sessionID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventSessionCreated, events[0].Type)
	assert.Equal(t, eventParticipantJoined, events[1].Type)
	assert.Equal(t, "0xaaa", events[1].Address)
	assert.Contains(t, string(events[1].Payload), `"count":1`)
}

func TestPersistEventWithoutDatabase(t *testing.T) {
	srv := New(nil, newTestConfig(), WithLogger(zerolog.Nop()))
	assert.NoError(t, srv.persistEvent(context.Background(), "s1", "", eventSessionCreated, game.PhaseLobby, EventPayload{}))
}
