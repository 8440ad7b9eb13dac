package config_test

import (
	"errors"
	"testing"

	"policyqa/internal/config"

	"github.com/stretchr/testify/assert"
)

func validConfig() config.Config {
	return config.Config{
		DoclingURL:          "http://docling:8000",
		EmbeddingModel:      "gemini-embedding-001",
		CacheDir:            "data/index",
		ChunkSize:           1000,
		ChunkOverlap:        150,
		TopK:                10,
		OversampleFactor:    3,
		BoostWeight:         0.5,
		QuestionConcurrency: 8,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
		errIs   error
	}{
		{
			name:    "Valid Config",
			mutate:  func(c *config.Config) {},
			wantErr: false,
		},
		{
			name:    "Missing DoclingURL",
			mutate:  func(c *config.Config) { c.DoclingURL = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Missing EmbeddingModel",
			mutate:  func(c *config.Config) { c.EmbeddingModel = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Missing CacheDir",
			mutate:  func(c *config.Config) { c.CacheDir = "" },
			wantErr: true,
			errIs:   config.ErrMissingRequired,
		},
		{
			name:    "Zero ChunkSize",
			mutate:  func(c *config.Config) { c.ChunkSize = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Overlap Not Below ChunkSize",
			mutate:  func(c *config.Config) { c.ChunkOverlap = 1000 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Negative Overlap",
			mutate:  func(c *config.Config) { c.ChunkOverlap = -1 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Zero TopK",
			mutate:  func(c *config.Config) { c.TopK = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Oversample Below One",
			mutate:  func(c *config.Config) { c.OversampleFactor = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Negative BoostWeight",
			mutate:  func(c *config.Config) { c.BoostWeight = -0.1 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
		{
			name:    "Zero Concurrency",
			mutate:  func(c *config.Config) { c.QuestionConcurrency = 0 },
			wantErr: true,
			errIs:   config.ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, errors.Is(err, tt.errIs))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
