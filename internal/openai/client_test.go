package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/web3analysis/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.Config{
		OpenAIAPIKey:     "sk-test",
		OpenAIBaseURL:    srv.URL,
		OpenAIModel:      "gpt-test",
		OpenAIImageModel: "img-test",
	}, nil)
}

func chatReply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
	})
}

func TestCheckAnalyzable(t *testing.T) {
	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, `{"analyzable": false, "reason": ""}`)
	})

	verdict, err := client.CheckAnalyzable(testContext(t), "MysteryCoin")
	require.NoError(t, err)
	assert.False(t, verdict.Analyzable)
	assert.Equal(t, defaultNotAnalyzableReason, verdict.Reason)
	assert.Equal(t, "gpt-test", got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Contains(t, got.Messages[1].Content, "MysteryCoin")
}

func TestGenerateAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "valid",
			content: `{"summary":{"description":"L2 rollup","imageDescription":"bridges"},"socialLinks":{"website":"https://arbitrum.io"}}`,
			check: func(t *testing.T, err error) {
				require.NoError(t, err)
			},
		},
		{
			name:    "missing description",
			content: `{"summary":{"imageDescription":"bridges"}}`,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrInvalidContent)
			},
		},
		{
			name:    "model refuses",
			content: `{"analyzable":false,"reason":"launched last week"}`,
			check: func(t *testing.T, err error) {
				var notAnalyzable *NotAnalyzableError
				require.ErrorAs(t, err, &notAnalyzable)
				assert.Equal(t, "launched last week", notAnalyzable.Reason)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				chatReply(w, tt.content)
			})
			_, err := client.GenerateAnalysis(testContext(t), "Arbitrum")
			tt.check(t, err)
		})
	}
}

func TestGenerateAnalysisAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"overloaded"}`, http.StatusServiceUnavailable)
	})

	_, err := client.GenerateAnalysis(testContext(t), "Arbitrum")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestGenerateImage(t *testing.T) {
	var payload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_, _ = w.Write([]byte(`{"data":[{"url":"https://img.example/1.png"}]}`))
	})

	img, err := client.GenerateImage(testContext(t), "a bridge between chains")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/1.png", img.URL)
	assert.Equal(t, "img-test", payload["model"])
	assert.Equal(t, "1024x1024", payload["size"])
	assert.Equal(t, "a bridge between chains in a professional business style, abstract, safe for work", payload["prompt"])
}

// testContext mirrors testing.T.Context (Go 1.24+): the context is cancelled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
