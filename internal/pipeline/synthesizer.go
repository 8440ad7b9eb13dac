package pipeline

import (
	"context"
	"fmt"
	"strings"

	"policyqa/internal/query"
	"policyqa/internal/retrieval"
)

// Generator is the text-generation capability used for answer synthesis.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer produces a grounded answer from retrieved clauses. The prompt
// labels every clause so the model can cite its sources, and instructs it to
// refuse rather than invent when the clauses do not contain the answer.
type Synthesizer struct {
	gen Generator
}

func NewSynthesizer(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

func (s *Synthesizer) Answer(ctx context.Context, parsed query.Parsed, chunks []retrieval.ScoredChunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	answer, err := s.gen.Generate(ctx, answerPrompt(parsed, chunks))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

func answerPrompt(parsed query.Parsed, chunks []retrieval.ScoredChunk) string {
	var sb strings.Builder

	sb.WriteString("You are an assistant answering questions about an insurance policy document.\n")
	sb.WriteString("Answer the question using ONLY the policy clauses below.\n")
	sb.WriteString("Quote figures, durations and limits exactly as written in the clauses.\n")
	sb.WriteString("If the clauses do not contain enough information to answer, reply exactly:\n")
	sb.WriteString("\"The provided policy document does not contain this information.\"\n")
	sb.WriteString("Do not guess and do not use outside knowledge.\n")
	if parsed.Type != "" && parsed.Type != query.TypeOthers {
		fmt.Fprintf(&sb, "The question is a %s question; answer in that form.\n", strings.ReplaceAll(string(parsed.Type), "_", " "))
	}
	sb.WriteString("\nPolicy clauses:\n")
	if len(chunks) == 0 {
		sb.WriteString("(no relevant clauses were found)\n")
	}
	for i, sc := range chunks {
		fmt.Fprintf(&sb, "\n[Clause %d]\n%s\n", i+1, sc.Chunk.Text)
	}
	fmt.Fprintf(&sb, "\nQuestion: %s\n\nAnswer:", parsed.Original)

	return sb.String()
}
