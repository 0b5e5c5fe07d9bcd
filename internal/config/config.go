package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port                       string
	StoreBackend               string
	RedisURL                   string
	DatabaseURL                string
	DBMaxOpenConns             int
	DBMaxIdleConns             int
	DBConnMaxLifetimeSeconds   int
	DBConnMaxIdleTimeSeconds   int
	GenerationLockSeconds      int
	GenerationResultTTLSeconds int
	GenerationTimeoutSeconds   int
	GenerationFallback         bool
	GenerationCandidates       int
	ReplicateAPIToken          string
	ReplicateModelVersion      string
	ReplicateBaseURL           string
	RandomStartTurn            bool
	VoteDurationSeconds        int
	InactiveSeconds            int
	AllowedOrigins             []string
	RateLimitPerSecond         float64
	RateLimitBurst             int
	LogLevel                   string
	LogPretty                  bool
}

func Default() Config {
	return Config{
		Port:                       "8080",
		StoreBackend:               StoreMemory,
		RedisURL:                   "redis://localhost:6379",
		DBMaxOpenConns:             10,
		DBMaxIdleConns:             10,
		DBConnMaxLifetimeSeconds:   300,
		DBConnMaxIdleTimeSeconds:   60,
		GenerationLockSeconds:      600,
		GenerationResultTTLSeconds: 3600,
		GenerationTimeoutSeconds:   300,
		GenerationFallback:         true,
		GenerationCandidates:       3,
		ReplicateModelVersion:      "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b",
		ReplicateBaseURL:           "https://api.replicate.com/v1",
		VoteDurationSeconds:        0,
		InactiveSeconds:            30,
		RateLimitPerSecond:         20,
		RateLimitBurst:             40,
		LogLevel:                   "info",
		LogPretty:                  true,
	}
}

func Load() Config {
	cfg := Default()
	if raw := os.Getenv("PORT"); raw != "" {
		cfg.Port = raw
	}
	if raw := strings.ToLower(os.Getenv("STORE_BACKEND")); raw == StoreMemory || raw == StoreRedis {
		cfg.StoreBackend = raw
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		cfg.RedisURL = raw
	}
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		cfg.DatabaseURL = raw
	}
	if raw := os.Getenv("DB_MAX_OPEN_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxOpenConns = value
		}
	}
	if raw := os.Getenv("DB_MAX_IDLE_CONNS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBMaxIdleConns = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_LIFETIME_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxLifetimeSeconds = value
		}
	}
	if raw := os.Getenv("DB_CONN_MAX_IDLE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.DBConnMaxIdleTimeSeconds = value
		}
	}
	if raw := os.Getenv("GENERATION_LOCK_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GenerationLockSeconds = value
		}
	}
	if raw := os.Getenv("GENERATION_RESULT_TTL_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GenerationResultTTLSeconds = value
		}
	}
	if raw := os.Getenv("GENERATION_TIMEOUT_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GenerationTimeoutSeconds = value
		}
	}
	if raw := os.Getenv("GENERATION_FALLBACK"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.GenerationFallback = value
		}
	}
	if raw := os.Getenv("GENERATION_CANDIDATES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.GenerationCandidates = value
		}
	}
	if raw := os.Getenv("REPLICATE_API_TOKEN"); raw != "" {
		cfg.ReplicateAPIToken = raw
	}
	if raw := os.Getenv("REPLICATE_MODEL_VERSION"); raw != "" {
		cfg.ReplicateModelVersion = raw
	}
	if raw := os.Getenv("REPLICATE_BASE_URL"); raw != "" {
		cfg.ReplicateBaseURL = strings.TrimRight(raw, "/")
	}
	if raw := os.Getenv("RANDOM_START_TURN"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.RandomStartTurn = value
		}
	}
	if raw := os.Getenv("VOTE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.VoteDurationSeconds = value
		}
	}
	if raw := os.Getenv("INACTIVE_SECONDS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.InactiveSeconds = value
		}
	}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		cfg.AllowedOrigins = splitList(raw)
	}
	if raw := os.Getenv("RATE_LIMIT_PER_SECOND"); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.RateLimitPerSecond = value
		}
	}
	if raw := os.Getenv("RATE_LIMIT_BURST"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.RateLimitBurst = value
		}
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("LOG_PRETTY"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.LogPretty = value
		}
	}
	return cfg
}

func (c Config) GenerationLockTTL() time.Duration {
	return time.Duration(c.GenerationLockSeconds) * time.Second
}

func (c Config) GenerationResultTTL() time.Duration {
	return time.Duration(c.GenerationResultTTLSeconds) * time.Second
}

func (c Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

func (c Config) VoteDuration() time.Duration {
	return time.Duration(c.VoteDurationSeconds) * time.Second
}

func (c Config) InactiveThreshold() time.Duration {
	return time.Duration(c.InactiveSeconds) * time.Second
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
