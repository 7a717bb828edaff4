package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/models"
)

func TestNDJSONChatStreamTranslatesLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		lines := []string{
			`{"model":"qwen-local","message":{"role":"assistant","content":"Hel"},"thinking":"pondering","done":false}`,
			`{"model":"qwen-local","message":{"role":"assistant","content":"lo"},"done":false}`,
			`{"model":"qwen-local","message":{"role":"assistant","content":""},"done":true}`,
		}
		for _, l := range lines {
			_, _ = w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	c := NewNDJSONChatClient(NDJSONChatOptions{BaseURL: srv.URL})
	chunks, cancel, err := c.ChatStream(context.Background(), models.ChatRequest{Model: "qwen-local"})
	require.NoError(t, err)
	defer cancel()

	var content string
	var sawThinking bool
	var sawDone bool
	for chunk := range chunks {
		if chunk.Thinking != "" {
			sawThinking = true
		}
		if chunk.Done {
			sawDone = true
		}
		for _, choice := range chunk.Choices {
			content += choice.Delta.Content
		}
	}

	assert.Equal(t, "Hello", content)
	assert.True(t, sawThinking)
	assert.True(t, sawDone)
}

func TestNDJSONChatNonStreamingConcatenates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"model":"qwen-local","message":{"role":"assistant","content":"ab"},"done":false}` + "\n"))
		_, _ = w.Write([]byte(`{"model":"qwen-local","message":{"role":"assistant","content":"c"},"done":true}` + "\n"))
	}))
	defer srv.Close()

	c := NewNDJSONChatClient(NDJSONChatOptions{BaseURL: srv.URL})
	resp, err := c.Chat(context.Background(), models.ChatRequest{Model: "qwen-local"})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "abc", resp.Choices[0].Message.Content)
}

func TestNDJSONChatNonOKStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewNDJSONChatClient(NDJSONChatOptions{BaseURL: srv.URL})
	_, _, err := c.ChatStream(context.Background(), models.ChatRequest{Model: "qwen-local"})
	require.Error(t, err)
}
