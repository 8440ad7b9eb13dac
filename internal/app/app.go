package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"policyqa/features/answer"
	"policyqa/features/stats"
	"policyqa/internal/config"
	"policyqa/internal/middleware"
	"policyqa/internal/pipeline"
	"policyqa/internal/query"
	"policyqa/internal/retrieval"
	"policyqa/internal/vectorindex"
)

// Embedder embeds a single query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces text from a prompt, used for both decomposition and
// answer synthesis.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TextProvider fetches document text for index builds.
type TextProvider interface {
	ExtractText(ctx context.Context, docRef string) (string, error)
}

// IndexStore resolves document indexes and reports cache stats.
type IndexStore interface {
	GetOrBuild(ctx context.Context, key string, provider func(context.Context) (string, error)) (*vectorindex.Index, error)
	Stats(ctx context.Context) (documents, chunks int, err error)
}

type App struct {
	Handler http.Handler
	port    int
}

func New(
	cfg *config.Config,
	store IndexStore,
	provider TextProvider,
	embedder Embedder,
	generator Generator,
	queryLogger *retrieval.QueryLogger,
) *App {

	// Pipeline wiring
	decomposer := query.NewDecomposer(generator)
	retriever := retrieval.NewService(embedder, retrieval.Options{
		TopK:             cfg.TopK,
		OversampleFactor: cfg.OversampleFactor,
		BoostWeight:      cfg.BoostWeight,
	}, queryLogger)
	synthesizer := pipeline.NewSynthesizer(generator)

	qa := pipeline.New(provider, store, decomposer, retriever, synthesizer, cfg.QuestionConcurrency)

	// Feature: Answer
	answerHandler := answer.NewHandler(qa)

	// Feature: Stats
	statsHandler := stats.NewHandler(store)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /answers", middleware.CorrelationID(enableCORS(answerHandler.Answer)))
	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler: mux,
		port:    cfg.ServerPort,
	}
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
