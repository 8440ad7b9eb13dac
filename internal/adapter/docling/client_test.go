package docling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1alpha/convert/source", r.URL.Path)

		var req convertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.HTTPSources, 1)
		assert.Equal(t, "https://example.com/policy.pdf", req.HTTPSources[0].URL)
		assert.Equal(t, []string{"md"}, req.Options.ToFormats)

		json.NewEncoder(w).Encode(map[string]any{
			"status":   "success",
			"document": map[string]any{"md_content": "# Policy\n\nGrace period of thirty days."},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	text, err := client.ExtractText(context.Background(), "https://example.com/policy.pdf")

	require.NoError(t, err)
	assert.Equal(t, "# Policy\n\nGrace period of thirty days.", text)
}

func TestExtractText_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversion worker crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.ExtractText(context.Background(), "https://example.com/policy.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
}

func TestExtractText_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported source", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.ExtractText(context.Background(), "https://example.com/bad.xyz")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocument)
	assert.False(t, errors.Is(err, ErrTransient))
}

func TestExtractText_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.ExtractText(context.Background(), "https://example.com/policy.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocument)
}

func TestExtractText_FailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"status": "failure"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.ExtractText(context.Background(), "https://example.com/policy.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocument)
}

func TestExtractText_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	_, err := client.ExtractText(context.Background(), "https://example.com/policy.pdf")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransient)
}
