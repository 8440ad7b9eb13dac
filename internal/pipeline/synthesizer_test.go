package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyqa/internal/query"
	"policyqa/internal/retrieval"
	"policyqa/internal/text"
)

type capturingGenerator struct {
	prompt string
	reply  string
	err    error
}

func (g *capturingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

func TestSynthesizer_LabelsClauses(t *testing.T) {
	gen := &capturingGenerator{reply: "  A grace period of thirty days is provided.  "}
	s := NewSynthesizer(gen)

	parsed := query.Parsed{Original: "What is the grace period?", Type: query.TypeNumericFactoid}
	chunks := []retrieval.ScoredChunk{
		{Chunk: text.Chunk{ID: 3, Text: "A grace period of thirty days applies to renewal."}, Score: 0.9},
		{Chunk: text.Chunk{ID: 7, Text: "Premium must be paid annually."}, Score: 0.4},
	}

	answer, err := s.Answer(context.Background(), parsed, chunks)

	require.NoError(t, err)
	assert.Equal(t, "A grace period of thirty days is provided.", answer)
	assert.Contains(t, gen.prompt, "[Clause 1]\nA grace period of thirty days applies to renewal.")
	assert.Contains(t, gen.prompt, "[Clause 2]\nPremium must be paid annually.")
	assert.Contains(t, gen.prompt, "Question: What is the grace period?")
	assert.Contains(t, gen.prompt, "numeric factoid")
	assert.Contains(t, gen.prompt, "does not contain this information")
}

func TestSynthesizer_EmptyContext(t *testing.T) {
	gen := &capturingGenerator{reply: "The provided policy document does not contain this information."}
	s := NewSynthesizer(gen)

	answer, err := s.Answer(context.Background(), query.Parsed{Original: "What is covered?"}, nil)

	require.NoError(t, err)
	assert.Contains(t, answer, "does not contain")
	assert.Contains(t, gen.prompt, "no relevant clauses were found")
}

func TestSynthesizer_GeneratorError(t *testing.T) {
	s := NewSynthesizer(&capturingGenerator{err: errors.New("quota exceeded")})

	_, err := s.Answer(context.Background(), query.Parsed{Original: "q"}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate answer")
}

func TestSynthesizer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSynthesizer(&capturingGenerator{reply: "unused"})
	_, err := s.Answer(ctx, query.Parsed{Original: "q"}, nil)

	require.ErrorIs(t, err, context.Canceled)
}
