package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Ollama connection
	OllamaHost  string
	OllamaModel string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount            int
	MaxQueueSize           int
	MaxConcurrentSummaries int

	// Gathering
	MaxFileBytes   int64
	IgnorePatterns []string

	// Budgeting
	ReserveFraction float64
	ContextOverride int

	// Reports
	ReportDir string

	// Job state
	JobTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8091"),

		OllamaHost:  envOr("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel: envOr("OLLAMA_MODEL", "llama3.2:3b"),

		APIKey: os.Getenv("REPOGIST_API_KEY"),

		WorkerCount:            envInt("WORKER_COUNT", 2),
		MaxQueueSize:           envInt("MAX_QUEUE_SIZE", 50),
		MaxConcurrentSummaries: envInt("MAX_CONCURRENT_SUMMARIES", 1),

		MaxFileBytes:   envInt64("MAX_FILE_BYTES", 100_000),
		IgnorePatterns: envList("IGNORE_PATTERNS"),

		ReserveFraction: envFloat("RESERVE_FRACTION", 0.7),
		ContextOverride: envInt("CONTEXT_OVERRIDE", 0),

		ReportDir: envOr("REPORT_DIR", "reports"),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxConcurrentSummaries <= 0 {
		cfg.MaxConcurrentSummaries = 1
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 100_000
	}
	if cfg.ReserveFraction <= 0 || cfg.ReserveFraction > 1 {
		cfg.ReserveFraction = 0.7
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.OllamaHost == "" {
		return fmt.Errorf("OLLAMA_HOST is required")
	}
	if c.OllamaModel == "" {
		return fmt.Errorf("OLLAMA_MODEL is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
