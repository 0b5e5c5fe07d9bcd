package server

import (
	"net/http"
	"sync"
	"time"

	"artfusion/internal/config"
	"artfusion/internal/game"
	"artfusion/internal/imagegen"
	"artfusion/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Server struct {
	coord     *game.Coordinator
	store     game.Store
	generator game.ImageGenerator
	minter    game.Minter
	db        *gorm.DB
	ws        *wsHub
	cfg       config.Config
	limiter   *rateLimiter
	logger    zerolog.Logger
	timersMu  sync.Mutex
	timers    map[string]*time.Timer
}

type Option func(*Server)

func WithStore(st game.Store) Option {
	return func(s *Server) { s.store = st }
}

func WithGenerator(gen game.ImageGenerator) Option {
	return func(s *Server) { s.generator = gen }
}

func WithMinter(m game.Minter) Option {
	return func(s *Server) { s.minter = m }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New wires the coordinator. Without options it runs on the in-memory
// store and the Replicate generator. conn may be nil.
func New(conn *gorm.DB, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		db:      conn,
		ws:      newWSHub(),
		cfg:     cfg,
		limiter: newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		logger:  log.Logger,
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	if s.generator == nil {
		s.generator = imagegen.NewReplicate(cfg, s.logger)
	}
	if s.minter == nil {
		if conn != nil {
			s.minter = &gormMinter{db: conn}
		} else {
			s.minter = newMemoryMinter()
		}
	}
	s.coord = game.NewCoordinator(s.store, s.generator, s.minter, game.Options{
		RandomStartTurn:   cfg.RandomStartTurn,
		LeaseTTL:          cfg.GenerationLockTTL(),
		ResultTTL:         cfg.GenerationResultTTL(),
		GenerationTimeout: cfg.GenerationTimeout(),
		Fallback:          cfg.GenerationFallback,
		Candidates:        cfg.GenerationCandidates,
	}, s.logger)
	registerValidators()
	return s
}

func (s *Server) Coordinator() *game.Coordinator {
	return s.coord
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(corsMiddleware(s.cfg.AllowedOrigins))
	}

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.Use(s.limiter.middleware())
	api.POST("/sessions", s.handleCreateSession)
	sessions := api.Group("/sessions/:id")
	sessions.GET("", s.handleGetSession)
	sessions.DELETE("", s.handleDeleteSession)
	sessions.POST("/join", s.handleJoin)
	sessions.POST("/leave", s.handleLeave)
	sessions.POST("/heartbeat", s.handleHeartbeat)
	sessions.POST("/start", s.handleStart)
	sessions.GET("/turns/:address", s.handleGetTurn)
	sessions.POST("/turns/:address", s.handleUpdateTurn)
	sessions.POST("/lock", s.handleLock)
	sessions.POST("/generate", s.handleGenerate)
	sessions.GET("/generation", s.handleGetGeneration)
	sessions.POST("/votes", s.handleVote)
	sessions.GET("/votes", s.handleGetVotes)
	sessions.POST("/mint", s.handleMint)
	sessions.GET("/events", s.handleEvents)

	r.GET("/ws/sessions/:id", s.handleWebsocket)
	return r
}
