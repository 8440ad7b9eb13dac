package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"policyqa/internal/query"
	"policyqa/internal/retrieval"
	"policyqa/internal/vectorindex"
)

// State tracks how far a question made it through the pipeline before
// finishing or failing.
type State string

const (
	StatePending    State = "PENDING"
	StateDecomposed State = "DECOMPOSED"
	StateRetrieved  State = "RETRIEVED"
	StateAnswered   State = "ANSWERED"
	StateFailed     State = "FAILED"
)

// Result is the outcome for one question. Answer and Error are mutually
// exclusive: a failed question carries an error message and an empty answer.
type Result struct {
	Question string `json:"question"`
	Answer   string `json:"answer,omitempty"`
	Error    string `json:"error,omitempty"`

	State State `json:"-"`
}

// TextProvider fetches the raw text of a document reference. It is only
// invoked on an index cache miss.
type TextProvider interface {
	ExtractText(ctx context.Context, docRef string) (string, error)
}

// IndexStore builds or loads the vector index for a document key.
type IndexStore interface {
	GetOrBuild(ctx context.Context, key string, provider func(context.Context) (string, error)) (*vectorindex.Index, error)
}

// Decomposer turns a question into retrieval sub-queries.
type Decomposer interface {
	Decompose(ctx context.Context, question string) (query.Parsed, error)
}

// Retriever ranks index chunks for a decomposed question.
type Retriever interface {
	Retrieve(ctx context.Context, parsed query.Parsed, idx retrieval.Searcher) ([]retrieval.ScoredChunk, error)
}

// Synthesizer produces the final answer from ranked chunks.
type Answerer interface {
	Answer(ctx context.Context, parsed query.Parsed, chunks []retrieval.ScoredChunk) (string, error)
}

// Pipeline runs the full question answering flow: resolve the document's
// index once, then fan the questions out with bounded concurrency. A failed
// question never aborts the batch; only index resolution is fatal.
type Pipeline struct {
	provider    TextProvider
	store       IndexStore
	decomposer  Decomposer
	retriever   Retriever
	synthesizer Answerer
	concurrency int
}

func New(provider TextProvider, store IndexStore, decomposer Decomposer, retriever Retriever, synthesizer Answerer, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{
		provider:    provider,
		store:       store,
		decomposer:  decomposer,
		retriever:   retriever,
		synthesizer: synthesizer,
		concurrency: concurrency,
	}
}

// AnswerQuestions answers every question against the referenced document.
// Results come back in question order regardless of completion order.
func (p *Pipeline) AnswerQuestions(ctx context.Context, docRef string, questions []string) ([]Result, error) {
	start := time.Now()
	key := vectorindex.ContentKey(docRef)

	idx, err := p.store.GetOrBuild(ctx, key, func(buildCtx context.Context) (string, error) {
		return p.provider.ExtractText(buildCtx, docRef)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve index for document: %w", err)
	}

	results := make([]Result, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, question := range questions {
		g.Go(func() error {
			results[i] = p.answerOne(gctx, question, idx)
			return nil
		})
	}
	g.Wait()

	slog.InfoContext(ctx, "question batch finished",
		"document_key", key, "questions", len(questions), "took", time.Since(start))
	return results, nil
}

func (p *Pipeline) answerOne(ctx context.Context, question string, idx *vectorindex.Index) Result {
	res := Result{Question: question, State: StatePending}

	fail := func(stage string, err error) Result {
		slog.WarnContext(ctx, "question failed", "stage", stage, "state", res.State, "error", err)
		res.State = StateFailed
		res.Error = fmt.Sprintf("%s: %v", stage, err)
		return res
	}

	parsed, err := p.decomposer.Decompose(ctx, question)
	if err != nil {
		return fail("decompose question", err)
	}
	res.State = StateDecomposed

	chunks, err := p.retriever.Retrieve(ctx, parsed, idx)
	if err != nil {
		return fail("retrieve context", err)
	}
	res.State = StateRetrieved

	answer, err := p.synthesizer.Answer(ctx, parsed, chunks)
	if err != nil {
		return fail("synthesize answer", err)
	}
	res.State = StateAnswered
	res.Answer = answer
	return res
}
