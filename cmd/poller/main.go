package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artfusion/internal/client"
	"artfusion/internal/logging"

	"github.com/rs/zerolog"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	sessionID := flag.String("session", "", "session id (empty creates one)")
	address := flag.String("address", "", "participant address")
	interval := flag.Duration("interval", client.DefaultInterval, "poll interval")
	voteTimeout := flag.Duration("vote-timeout", client.DefaultVoteTimeout, "auto vote after this long in voting")
	leave := flag.Bool("leave", false, "leave the session on exit")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logger := logging.Setup(*level, true)
	if *address == "" {
		logger.Fatal().Msg("-address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewClient(*baseURL, nil)
	if *sessionID == "" {
		id, err := api.CreateSession(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("create session failed")
		}
		*sessionID = id
		logger.Info().Str("session_id", id).Msg("session created")
	}
	if _, err := api.Join(ctx, *sessionID, *address); err != nil {
		logger.Fatal().Err(err).Str("session_id", *sessionID).Msg("join failed")
	}

	poller := client.NewPoller(api, client.Config{
		SessionID:    *sessionID,
		Address:      *address,
		Interval:     *interval,
		VoteTimeout:  *voteTimeout,
		AutoGenerate: true,
	}, logUpdate(logger), logger)

	_ = poller.Run(ctx)

	if *leave {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := poller.Leave(leaveCtx); err != nil {
			logger.Warn().Err(err).Msg("leave failed")
			return
		}
		logger.Info().Msg("left session")
	}
}

func logUpdate(logger zerolog.Logger) client.Handler {
	return func(u client.Update) {
		if u.Err != nil || !u.PhaseChanged {
			return
		}
		v := u.View
		logger.Info().
			Str("phase", string(v.Phase)).
			Str("artist", logging.ShortAddress(v.Artist)).
			Bool("is_artist", v.IsArtist).
			Bool("voting_open", v.VotingOpen).
			Int("winner", v.Winner).
			Msg("view")
	}
}
