package upstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localai/gateway/internal/models"
)

func TestMockImageClientReturnsRequestedCount(t *testing.T) {
	c := NewMockImageClient()
	out, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a cat", N: 3})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestMockImageClientDefaultsToOne(t *testing.T) {
	c := NewMockImageClient()
	out, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a cat"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestA1111ImageClientSendsExpectedPayload(t *testing.T) {
	var captured a1111Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(a1111Response{Images: []string{"YmFzZTY0"}})
	}))
	defer srv.Close()

	c := NewA1111ImageClient(A1111Options{BaseURL: srv.URL})
	seed := int64(42)
	guidance := float32(7.5)
	out, err := c.Generate(context.Background(), models.ImageRequest{
		Prompt: "a cat", Size: "768x512", Steps: 20, Seed: &seed, GuidanceScale: &guidance, N: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"YmFzZTY0"}, out)
	assert.Equal(t, "a cat", captured.Prompt)
	assert.Equal(t, 768, captured.Width)
	assert.Equal(t, 512, captured.Height)
	assert.Equal(t, int64(42), captured.Seed)
	assert.Equal(t, float32(7.5), captured.CFGScale)
	assert.Equal(t, 2, captured.BatchSize)
}

func TestA1111ImageClientForwardsAllowlistedOptionsOnly(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(a1111Response{Images: []string{"YmFzZTY0"}})
	}))
	defer srv.Close()

	c := NewA1111ImageClient(A1111Options{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), models.ImageRequest{
		Prompt: "a cat",
		Options: map[string]interface{}{
			"sampler":        "DPM++ 2M Karras",
			"style":          "cinematic",
			"unknown_option": "should be dropped",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "DPM++ 2M Karras", captured["sampler"])
	assert.Equal(t, "cinematic", captured["style"])
	assert.NotContains(t, captured, "unknown_option")
}

func TestA1111ImageClientPropagatesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad prompt"}`))
	}))
	defer srv.Close()

	c := NewA1111ImageClient(A1111Options{BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a cat"})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
}

func TestMockImageClientProducesDeterministicSVG(t *testing.T) {
	c := NewMockImageClient()
	out, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a red fox", Size: "256x256"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	raw, err := base64.StdEncoding.DecodeString(out[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<svg")
	assert.Contains(t, string(raw), "a red fox")

	again, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a red fox", Size: "256x256"})
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestParseSizeFallsBackOnInvalidInput(t *testing.T) {
	w, h := parseSize("not-a-size")
	assert.Equal(t, 512, w)
	assert.Equal(t, 512, h)
}
