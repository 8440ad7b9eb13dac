package config

import (
	"errors"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

var ErrInvalidValue = errors.New("invalid configuration value")

type Config struct {
	// External collaborators
	DoclingURL   string `envconfig:"DOCLING_URL" default:"http://docling:8000"`
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`

	// Models
	EmbeddingModel  string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	GenerationModel string `envconfig:"GENERATION_MODEL" default:"gemini-2.0-flash"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"150"`

	// Retrieval
	TopK             int     `envconfig:"SEARCH_TOP_K" default:"10"`
	OversampleFactor int     `envconfig:"SEARCH_OVERSAMPLE_FACTOR" default:"3"`
	BoostWeight      float32 `envconfig:"SEARCH_BOOST_WEIGHT" default:"0.5"`

	// Index cache
	CacheDir string `envconfig:"INDEX_CACHE_DIR" default:"data/index"`

	// Pipeline
	QuestionConcurrency int `envconfig:"QUESTION_CONCURRENCY" default:"8"`
	EmbedBatchSize      int `envconfig:"EMBED_BATCH_SIZE" default:"64"`

	// Server
	ServerPort   int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
}

func Load() (*Config, error) {
	// Env vars might be set in the shell instead; ignore a missing .env.
	_ = godotenv.Load(".env")

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DoclingURL == "" {
		return fmt.Errorf("%w: DOCLING_URL", ErrMissingRequired)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("%w: INDEX_CACHE_DIR", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidValue)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: SEARCH_TOP_K must be positive", ErrInvalidValue)
	}
	if c.OversampleFactor < 1 {
		return fmt.Errorf("%w: SEARCH_OVERSAMPLE_FACTOR must be >= 1", ErrInvalidValue)
	}
	if c.BoostWeight < 0 {
		return fmt.Errorf("%w: SEARCH_BOOST_WEIGHT must not be negative", ErrInvalidValue)
	}
	if c.QuestionConcurrency <= 0 {
		return fmt.Errorf("%w: QUESTION_CONCURRENCY must be positive", ErrInvalidValue)
	}
	return nil
}
