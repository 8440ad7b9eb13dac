package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"policyqa/internal/query"
	"policyqa/internal/text"
	"policyqa/internal/vectorindex"
)

// ScoredChunk is one entry of the ranked context: a chunk with its final
// blended score, ordered best-first.
type ScoredChunk struct {
	Chunk text.Chunk `json:"chunk"`
	Score float32    `json:"score"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher is the read side of a built vector index.
type Searcher interface {
	Search(vector []float32, k int) []vectorindex.Hit
}

type Options struct {
	TopK             int
	OversampleFactor int
	BoostWeight      float32
}

// Service ranks index chunks for a decomposed question. Each sub-query is
// embedded and searched with an oversampled candidate pool; candidates whose
// text contains the sub-query's keyword get their similarity multiplied by
// (1 + boost weight), which lets lexically anchored chunks overtake purely
// semantic matches. Pools are merged across sub-queries, deduplicated by
// chunk id keeping the highest score, and truncated to the top K.
type Service struct {
	embedder Embedder
	opts     Options
	logger   *QueryLogger
}

func NewService(embedder Embedder, opts Options, logger *QueryLogger) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.OversampleFactor < 1 {
		opts.OversampleFactor = 3
	}
	return &Service{embedder: embedder, opts: opts, logger: logger}
}

func (s *Service) Retrieve(ctx context.Context, parsed query.Parsed, idx Searcher) ([]ScoredChunk, error) {
	start := time.Now()

	best := make(map[int]ScoredChunk)
	for _, sq := range parsed.SubQueries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vec, err := s.embedder.Embed(ctx, sq.Text)
		if err != nil {
			return nil, fmt.Errorf("embed sub-query: %w", err)
		}

		hits := idx.Search(vec, s.opts.TopK*s.opts.OversampleFactor)
		for _, c := range s.rerank(hits, sq.Keyword) {
			if prev, ok := best[c.Chunk.ID]; !ok || c.Score > prev.Score {
				best[c.Chunk.ID] = c
			}
		}
	}

	merged := make([]ScoredChunk, 0, len(best))
	for _, c := range best {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].Chunk.ID < merged[j].Chunk.ID
	})
	if len(merged) > s.opts.TopK {
		merged = merged[:s.opts.TopK]
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:      parsed.Original,
			SubQueries: len(parsed.SubQueries),
			Fallback:   parsed.Fallback,
			NumResults: len(merged),
			Duration:   time.Since(start),
		})
	}
	return merged, nil
}

// rerank applies the keyword boost to a candidate pool and re-sorts it by
// final score. Ties keep the original similarity rank, which the stable sort
// preserves from the search order.
func (s *Service) rerank(hits []vectorindex.Hit, keyword string) []ScoredChunk {
	scored := make([]ScoredChunk, len(hits))
	for i, h := range hits {
		score := h.Score
		if keyword != "" && containsKeyword(h.Chunk.Text, keyword) {
			score *= 1 + s.opts.BoostWeight
		}
		scored[i] = ScoredChunk{Chunk: h.Chunk, Score: score}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// containsKeyword is a case-insensitive substring match on keyword-normalized
// forms, so "pre existing diseases" still matches a chunk that spells it
// "Pre-Existing Diseases".
func containsKeyword(chunkText, keyword string) bool {
	return strings.Contains(query.NormalizeKeyword(chunkText), query.NormalizeKeyword(keyword))
}
