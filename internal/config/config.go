package config

import (
	"strconv"
	"time"

	"docent/pkg/config"
)

// Config stores environment configuration for docent.
type Config struct {
	Port              string
	DatabaseURL       string
	DocsDir           string
	CollectionsDir    string
	PromptsDir        string
	DefaultCollection string
	MaxSteps          int
	StepTimeout       time.Duration
	ChunkSize         int
	ChunkOverlap      int
	TopK              int
	MinSimilarity     float64
	SearchLimit       int
}

// LoadConfig loads the docent configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:              config.GetEnv("PORT", "18080"),
		DatabaseURL:       config.RequireEnv("DATABASE_URL"),
		DocsDir:           config.GetEnv("DOCENT_DOCS_DIR", "./docs"),
		CollectionsDir:    config.GetEnv("DOCENT_COLLECTIONS_DIR", "./collections"),
		PromptsDir:        config.GetEnv("DOCENT_PROMPTS_DIR", "./prompts"),
		DefaultCollection: config.GetEnv("DOCENT_DEFAULT_COLLECTION", "wiki"),
		MaxSteps:          config.GetEnvInt("DOCENT_MAX_STEPS", 30),
		StepTimeout:       parseDuration(config.GetEnv("DOCENT_STEP_TIMEOUT", "60s"), 60*time.Second),
		ChunkSize:         config.GetEnvInt("DOCENT_CHUNK_SIZE", 500),
		ChunkOverlap:      config.GetEnvInt("DOCENT_CHUNK_OVERLAP", 100),
		TopK:              config.GetEnvInt("DOCENT_TOP_K", 4),
		MinSimilarity:     parseFloat(config.GetEnv("DOCENT_MIN_SIMILARITY", "0.1"), 0.1),
		SearchLimit:       config.GetEnvInt("DOCENT_SEARCH_LIMIT", 5),
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseFloat(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}
