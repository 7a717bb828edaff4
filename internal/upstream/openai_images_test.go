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

func TestOpenAIImagesClientPassesThroughB64JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": "aGVsbG8="}},
		})
	}))
	defer srv.Close()

	base, err := NewOpenAIClient(OpenAIOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	c := NewOpenAIImagesClient(base, "sdxl")
	out, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a cat", N: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"aGVsbG8="}, out)
}

func TestOpenAIImagesClientFetchesBareURL(t *testing.T) {
	imageBytes := []byte("not-really-an-image")

	mux := http.NewServeMux()
	mux.HandleFunc("/images/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(imageBytes)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	genSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"url": srv.URL + "/images/1.png"}},
		})
	}))
	defer genSrv.Close()

	base, err := NewOpenAIClient(OpenAIOptions{BaseURL: genSrv.URL})
	require.NoError(t, err)

	c := NewOpenAIImagesClient(base, "sdxl")
	out, err := c.Generate(context.Background(), models.ImageRequest{Prompt: "a cat", N: 1})
	require.NoError(t, err)
	require.Len(t, out, 1)

	decoded, err := base64.StdEncoding.DecodeString(out[0])
	require.NoError(t, err)
	assert.Equal(t, imageBytes, decoded)
}
