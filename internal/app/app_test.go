package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyqa/internal/config"
	"policyqa/internal/retrieval"
	"policyqa/internal/text"
	"policyqa/internal/vectorindex"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, s string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "sub_queries") {
		return `{"query_type":"numeric_factoid","sub_queries":[{"text":"grace period duration","keyword":"grace period"}]}`, nil
	}
	return "A grace period of thirty days is provided.", nil
}

type stubProvider struct{}

func (stubProvider) ExtractText(ctx context.Context, docRef string) (string, error) {
	return "A grace period of thirty days applies to premium payment.", nil
}

type stubStore struct {
	idx *vectorindex.Index
}

func (s *stubStore) GetOrBuild(ctx context.Context, key string, provider func(context.Context) (string, error)) (*vectorindex.Index, error) {
	if _, err := provider(ctx); err != nil {
		return nil, err
	}
	return s.idx, nil
}

func (s *stubStore) Stats(ctx context.Context) (int, int, error) {
	return 1, s.idx.Len(), nil
}

func testApp(t *testing.T) *App {
	t.Helper()

	idx, err := vectorindex.New("test-model",
		[]text.Chunk{{ID: 0, Text: "A grace period of thirty days applies to premium payment.", Start: 0, End: 57}},
		[][]float32{{1, 0}})
	require.NoError(t, err)

	cfg := &config.Config{
		TopK:                10,
		OversampleFactor:    3,
		BoostWeight:         0.5,
		QuestionConcurrency: 2,
		ServerPort:          8081,
	}

	return New(cfg, &stubStore{idx: idx}, stubProvider{}, stubEmbedder{}, stubGenerator{},
		retrieval.NewQueryLogger(os.Stdout))
}

func TestApp_AnswerRoute(t *testing.T) {
	a := testApp(t)

	body := `{"document":"https://example.com/policy.pdf","questions":["What is the grace period?"]}`
	req := httptest.NewRequest("POST", "/answers", strings.NewReader(body))
	w := httptest.NewRecorder()

	a.Handler.ServeHTTP(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Answers []struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		} `json:"answers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Len(t, parsed.Answers, 1)
	assert.Equal(t, "What is the grace period?", parsed.Answers[0].Question)
	assert.Equal(t, "A grace period of thirty days is provided.", parsed.Answers[0].Answer)
}

func TestApp_AnswerRouteRejectsGet(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest("GET", "/answers", nil)
	w := httptest.NewRecorder()

	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Result().StatusCode)
}

func TestApp_StatsRoute(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()

	a.Handler.ServeHTTP(w, req)

	resp := w.Result()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body["data"]["documents"])
	assert.Equal(t, 1, body["data"]["chunks"])
}

func TestApp_HealthRoute(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	a.Handler.ServeHTTP(w, req)

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestApp_CORSHeaders(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()

	a.Handler.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Result().Header.Get("Access-Control-Allow-Origin"))
}
