package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sink names accepted by LABELGEN_SINK.
const (
	SinkClickHouse = "clickhouse"
	SinkCSV        = "csv"
)

// Turn counts and shard numbers are stored as UInt16 in the examples table.
const (
	MaxTurnsLimit = 65535
	MaxWorkers    = 65535
)

type Config struct {
	// Server
	Port            int
	Env             string
	ShutdownTimeout time.Duration

	// CORS
	AllowedOrigins []string

	// Model resolution
	ModelName   string
	ModelStage  string
	ArtifactDir string
	RedisURL    string
}

// LabelGenConfig configures an offline label generation run.
type LabelGenConfig struct {
	Env string

	PostgresURL   string
	ClickHouseURL string
	Sink          string
	Table         string
	OutputDir     string

	WorkerCount int
	BatchSize   int
	Seed        uint64
	MaxTurns    int
}

// Load loads the serving configuration from environment variables.
// The registry is optional: without REDIS_URL only local artifacts are used.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getEnvInt("PORT", 8080),
		Env:             getEnv("ENV", "development"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		ModelName:   getEnv("MODEL_NAME", "matchup"),
		ModelStage:  getEnv("MODEL_STAGE", "production"),
		ArtifactDir: getEnv("ARTIFACT_DIR", "./artifacts"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	// CORS
	cfg.AllowedOrigins = splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"))

	return cfg, nil
}

// LoadLabelGen loads the label generation configuration.
// It returns an error if critical configuration is missing.
func LoadLabelGen() (*LabelGenConfig, error) {
	cfg := &LabelGenConfig{
		Env:         getEnv("ENV", "development"),
		Sink:        strings.ToLower(getEnv("LABELGEN_SINK", SinkClickHouse)),
		Table:       getEnv("LABELGEN_TABLE", "matchup.labeled_examples"),
		OutputDir:   getEnv("LABELGEN_OUTPUT_DIR", "./labels"),
		WorkerCount: getEnvInt("WORKER_COUNT", 8),
		BatchSize:   getEnvInt("BATCH_SIZE", 500),
		Seed:        getEnvUint64("LABELGEN_SEED", 1),
		MaxTurns:    getEnvInt("MAX_TURNS", 100),
	}

	// Critical configuration - fail if missing
	var err error
	if cfg.PostgresURL, err = getEnvRequired("POSTGRES_URL"); err != nil {
		return nil, err
	}
	switch cfg.Sink {
	case SinkClickHouse:
		if cfg.ClickHouseURL, err = getEnvRequired("CLICKHOUSE_URL"); err != nil {
			return nil, err
		}
	case SinkCSV:
	default:
		return nil, fmt.Errorf("unknown LABELGEN_SINK %q", cfg.Sink)
	}
	if cfg.MaxTurns <= 0 || cfg.MaxTurns > MaxTurnsLimit {
		return nil, fmt.Errorf("MAX_TURNS must be in 1..%d, got %d", MaxTurnsLimit, cfg.MaxTurns)
	}
	if cfg.WorkerCount > MaxWorkers {
		return nil, fmt.Errorf("WORKER_COUNT must be at most %d, got %d", MaxWorkers, cfg.WorkerCount)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvRequired(key string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("missing required environment variable: %s", key)
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseUint(value, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
