package answer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"policyqa/internal/middleware"
	"policyqa/internal/pipeline"
)

// Runner answers a batch of questions against one document.
type Runner interface {
	AnswerQuestions(ctx context.Context, docRef string, questions []string) ([]pipeline.Result, error)
}

type Handler struct {
	runner Runner
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

type answerRequest struct {
	Document  string   `json:"document"`
	Questions []string `json:"questions"`
}

type answerResponse struct {
	Answers []pipeline.Result `json:"answers"`
}

func (h *Handler) Answer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	if req.Document == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "document is required", http.StatusBadRequest)
		return
	}
	if len(req.Questions) == 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "at least one question is required", http.StatusBadRequest)
		return
	}
	for _, q := range req.Questions {
		if q == "" {
			h.writeError(ctx, w, "VALIDATION_ERROR", "questions must not be empty", http.StatusBadRequest)
			return
		}
	}

	slog.InfoContext(ctx, "answering questions",
		"document", req.Document, "questions", len(req.Questions), "correlationId", correlationID)

	results, err := h.runner.AnswerQuestions(ctx, req.Document, req.Questions)
	if err != nil {
		slog.ErrorContext(ctx, "failed to answer questions", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to process document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(answerResponse{Answers: results}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
