package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// QueryType is a coarse category for a question, used for logging and
// prompt shaping downstream.
type QueryType string

const (
	TypeYesNo          QueryType = "yes_no"
	TypeDefinition     QueryType = "definition"
	TypeNumericFactoid QueryType = "numeric_factoid"
	TypeListing        QueryType = "listing"
	TypeSubLimit       QueryType = "sub_limit"
	TypeProcedural     QueryType = "procedural"
	TypeEligibility    QueryType = "eligibility"
	TypeOthers         QueryType = "others"
)

// SubQuery is one standalone retrieval query. Keyword, when present, is the
// single most salient term the retriever should weight higher; it is
// normalized to lowercase words.
type SubQuery struct {
	Text    string
	Keyword string
}

// Parsed is the decomposition of one user question. Fallback marks the
// degraded form where the whole question became the sole sub-query because
// the language model produced no usable structure.
type Parsed struct {
	Original   string
	Type       QueryType
	SubQueries []SubQuery
	Fallback   bool
}

// Generator is the text-generation capability used for decomposition.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type Decomposer struct {
	gen Generator
}

func NewDecomposer(gen Generator) *Decomposer {
	return &Decomposer{gen: gen}
}

// decomposition is the wire shape requested from the model.
type decomposition struct {
	QueryType  string `json:"query_type"`
	SubQueries []struct {
		Text    string `json:"text"`
		Keyword string `json:"keyword"`
	} `json:"sub_queries"`
}

// Decompose turns a question into sub-queries via a single model call. It
// always yields at least one sub-query: any model failure or malformed
// output degrades to the original question with no keyword. The only hard
// failure is caller cancellation.
func (d *Decomposer) Decompose(ctx context.Context, question string) (Parsed, error) {
	if err := ctx.Err(); err != nil {
		return Parsed{}, err
	}

	raw, err := d.gen.Generate(ctx, decomposePrompt(question))
	if err != nil {
		if ctx.Err() != nil {
			return Parsed{}, ctx.Err()
		}
		slog.WarnContext(ctx, "query decomposition degraded to fallback", "error", err)
		return fallback(question), nil
	}

	parsed, ok := parseDecomposition(question, raw)
	if !ok {
		slog.WarnContext(ctx, "query decomposition returned malformed output, using fallback")
		return fallback(question), nil
	}
	return parsed, nil
}

func fallback(question string) Parsed {
	return Parsed{
		Original:   question,
		Type:       TypeOthers,
		SubQueries: []SubQuery{{Text: question}},
		Fallback:   true,
	}
}

func parseDecomposition(question, raw string) (Parsed, bool) {
	var wire decomposition
	if err := json.Unmarshal([]byte(stripFences(raw)), &wire); err != nil {
		return Parsed{}, false
	}

	parsed := Parsed{Original: question, Type: queryType(wire.QueryType)}
	for _, sq := range wire.SubQueries {
		t := strings.TrimSpace(sq.Text)
		if t == "" {
			continue
		}
		parsed.SubQueries = append(parsed.SubQueries, SubQuery{
			Text:    t,
			Keyword: NormalizeKeyword(sq.Keyword),
		})
	}
	if len(parsed.SubQueries) == 0 {
		return Parsed{}, false
	}
	return parsed, true
}

func queryType(s string) QueryType {
	switch t := QueryType(strings.TrimSpace(strings.ToLower(s))); t {
	case TypeYesNo, TypeDefinition, TypeNumericFactoid, TypeListing,
		TypeSubLimit, TypeProcedural, TypeEligibility:
		return t
	default:
		return TypeOthers
	}
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeKeyword lowercases a keyword and collapses every non-alphanumeric
// run into a single space, so "Pre-Existing_Diseases" matches the phrase
// "pre existing diseases" regardless of how the model spelled it.
func NormalizeKeyword(kw string) string {
	return strings.TrimSpace(nonAlnum.ReplaceAllString(strings.ToLower(kw), " "))
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFences unwraps a markdown code fence if the model wrapped its JSON in
// one, otherwise returns the input trimmed.
func stripFences(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return strings.TrimSpace(raw)
}

func decomposePrompt(question string) string {
	var b strings.Builder
	b.WriteString(`You convert a user's insurance-policy question into a JSON object for a retrieval engine. Return ONLY the JSON object, no extra text.

The object has exactly two keys:
1. "query_type": one of yes_no, definition, numeric_factoid, listing, sub_limit, procedural, eligibility, others. Use others when the question mixes distinct topics.
2. "sub_queries": a list of short standalone questions that together cover every aspect of the user's question, one entry per distinct topic. Each entry has:
   - "text": the standalone question.
   - "keyword": the single most important phrase (1-4 words) of that topic, the term the retrieval engine should weight higher. May be empty if no single phrase stands out.

Examples:

Question: "Does this policy cover maternity expenses, and what are the conditions?"
{"query_type": "yes_no", "sub_queries": [{"text": "coverage and conditions of maternity expenses", "keyword": "maternity expenses"}]}

Question: "What is the waiting period for pre-existing diseases?"
{"query_type": "numeric_factoid", "sub_queries": [{"text": "waiting period for pre-existing diseases", "keyword": "pre-existing diseases"}]}

Question: "What documents are needed for a robotic surgery claim, and can a sibling above 26 stay a dependent?"
{"query_type": "others", "sub_queries": [{"text": "documents required for a robotic surgery claim", "keyword": "robotic surgery"}, {"text": "eligibility for a dependent sibling over 26", "keyword": "dependent sibling"}]}

Now convert the following question.

Question: "`)
	b.WriteString(question)
	b.WriteString("\"\n")
	return b.String()
}
