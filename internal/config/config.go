// Package config reads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// History backends.
const (
	HistoryMemory   = "memory"
	HistorySQLite   = "sqlite"
	HistoryPostgres = "postgres"
)

// Symptom choosers.
const (
	ChooserSplit  = "split"
	ChooserRandom = "random"
)

type Config struct {
	Port           string
	GinMode        string
	LogLevel       string
	LogFormat      string
	AllowedOrigins []string

	Models  ModelConfig
	History HistoryConfig
	Enrich  EnrichConfig
}

type ModelConfig struct {
	Dir            string
	ONNXLibPath    string
	MaxRefinements int
	Chooser        string
	ChooserSeed    uint64
}

type HistoryConfig struct {
	Backend     string
	SQLitePath  string
	DatabaseURL string
}

type EnrichConfig struct {
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
	Timeout       time.Duration
	RateLimit     float64
	CacheSize     int
	CacheTTL      time.Duration
	RedisURL      string
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Config, error) {
	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "release"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		Models: ModelConfig{
			Dir:         getEnv("MODEL_DIR", "models"),
			ONNXLibPath: os.Getenv("ONNXRUNTIME_LIB"),
			Chooser:     strings.ToLower(getEnv("SYMPTOM_CHOOSER", ChooserSplit)),
		},
		History: HistoryConfig{
			Backend:     strings.ToLower(getEnv("HISTORY_BACKEND", HistoryMemory)),
			SQLitePath:  getEnv("SQLITE_PATH", "data/history.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Enrich: EnrichConfig{
			GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
			RedisURL:      os.Getenv("REDIS_URL"),
		},
	}

	var err error
	if cfg.Models.MaxRefinements, err = getEnvInt("MAX_REFINEMENTS", 3); err != nil {
		fail("MAX_REFINEMENTS", err)
	} else if cfg.Models.MaxRefinements < 0 {
		fail("MAX_REFINEMENTS", fmt.Errorf("must be >= 0, got %d", cfg.Models.MaxRefinements))
	}
	if v := os.Getenv("CHOOSER_SEED"); v != "" {
		if cfg.Models.ChooserSeed, err = strconv.ParseUint(v, 10, 64); err != nil {
			fail("CHOOSER_SEED", err)
		}
	} else {
		cfg.Models.ChooserSeed = uint64(time.Now().UnixNano())
	}
	if cfg.Enrich.Timeout, err = getEnvDuration("ENRICH_TIMEOUT", 15*time.Second); err != nil {
		fail("ENRICH_TIMEOUT", err)
	}
	if cfg.Enrich.RateLimit, err = getEnvFloat("ENRICH_RATE_LIMIT", 2); err != nil {
		fail("ENRICH_RATE_LIMIT", err)
	}
	if cfg.Enrich.CacheSize, err = getEnvInt("ENRICH_CACHE_SIZE", 256); err != nil {
		fail("ENRICH_CACHE_SIZE", err)
	}
	if cfg.Enrich.CacheTTL, err = getEnvDuration("ENRICH_CACHE_TTL", 24*time.Hour); err != nil {
		fail("ENRICH_CACHE_TTL", err)
	}

	switch cfg.Models.Chooser {
	case ChooserSplit, ChooserRandom:
	default:
		fail("SYMPTOM_CHOOSER", fmt.Errorf("unknown chooser %q", cfg.Models.Chooser))
	}

	switch cfg.History.Backend {
	case HistoryMemory, HistorySQLite:
	case HistoryPostgres:
		if cfg.History.DatabaseURL == "" {
			fail("DATABASE_URL", fmt.Errorf("required when HISTORY_BACKEND=postgres"))
		}
	default:
		fail("HISTORY_BACKEND", fmt.Errorf("unknown backend %q", cfg.History.Backend))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
