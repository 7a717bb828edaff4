package upstream

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/localai/gateway/internal/models"
)

// OpenAIImagesClient adapts an OpenAIClient to the ImageClient contract the
// images pipeline drives: callers here always get back base64 bytes, never
// bare URLs, regardless of what the upstream actually returned.
type OpenAIImagesClient struct {
	client     *OpenAIClient
	model      string
	httpClient *http.Client
}

// NewOpenAIImagesClient builds an ImageClient over a backend that speaks the
// OpenAI images wire protocol. model overrides req.Model when set, since
// some OpenAI-shaped image backends are bound to a single model.
func NewOpenAIImagesClient(client *OpenAIClient, model string) *OpenAIImagesClient {
	return &OpenAIImagesClient{
		client:     client,
		model:      model,
		httpClient: NewHTTPClient(ClientOptions{ConnectTimeout: 5 * time.Second}),
	}
}

func (c *OpenAIImagesClient) Generate(ctx context.Context, req models.ImageRequest) ([]string, error) {
	upstreamReq := req
	upstreamReq.ResponseFormat = "b64_json"
	if c.model != "" {
		upstreamReq.Model = c.model
	}

	resp, err := c.client.GenerateImages(ctx, upstreamReq)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.B64JSON != "" {
			out = append(out, item.B64JSON)
			continue
		}
		// The upstream ignored response_format=b64_json and handed back a
		// URL instead; fetch it once and inline the bytes so every
		// ImageClient implementation honors the same b64-only contract.
		b64, err := c.fetchAndEncode(ctx, item.URL)
		if err != nil {
			return nil, fmt.Errorf("upstream: fetch image url: %w", err)
		}
		out = append(out, b64)
	}
	return out, nil
}

func (c *OpenAIImagesClient) fetchAndEncode(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("upstream: image response had neither b64_json nor url")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Status: resp.StatusCode, Err: fmt.Errorf("image url fetch returned status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(body), nil
}
