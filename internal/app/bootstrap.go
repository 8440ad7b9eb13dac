package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"policyqa/internal/adapter/docling"
	"policyqa/internal/adapter/gemini"
	"policyqa/internal/config"
	"policyqa/internal/retrieval"
	"policyqa/internal/vectorindex"
)

// Dependencies holds the external collaborators the app wires together.
type Dependencies struct {
	Embedder    *gemini.Embedder
	Generator   *gemini.Generator
	Store       *vectorindex.Store
	Docling     *docling.Client
	QueryLogger *retrieval.QueryLogger
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder error: %w", err)
	}

	generator, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel)
	if err != nil {
		embedder.Close()
		return nil, fmt.Errorf("gemini generator error: %w", err)
	}

	store, err := vectorindex.NewStore(cfg.CacheDir, embedder, cfg.ChunkSize, cfg.ChunkOverlap, cfg.EmbedBatchSize)
	if err != nil {
		embedder.Close()
		generator.Close()
		return nil, fmt.Errorf("index store error: %w", err)
	}

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	return &Dependencies{
		Embedder:    embedder,
		Generator:   generator,
		Store:       store,
		Docling:     docling.NewClient(cfg.DoclingURL),
		QueryLogger: queryLogger,
	}, nil
}

func (d *Dependencies) Close() {
	if d.Embedder != nil {
		if err := d.Embedder.Close(); err != nil {
			slog.Warn("failed to close embedder client", "error", err)
		}
	}
	if d.Generator != nil {
		if err := d.Generator.Close(); err != nil {
			slog.Warn("failed to close generator client", "error", err)
		}
	}
}
