package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"policyqa/internal/middleware"
)

// IndexStore reports on the cached document indexes.
type IndexStore interface {
	Stats(ctx context.Context) (documents, chunks int, err error)
}

type Handler struct {
	store IndexStore
}

func NewHandler(store IndexStore) *Handler {
	return &Handler{store: store}
}

type StatsResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	documents, chunks, err := h.store.Stats(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read index stats", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to read index stats", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Documents: documents,
		Chunks:    chunks,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
