package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/localai/gateway/internal/models"
)

// ndjsonLine is the wire shape a line-delimited-JSON chat runtime emits:
// one JSON object per line, content accumulating in message.content, an
// optional chain-of-thought channel in thinking, and a terminal done line.
type ndjsonLine struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Thinking string `json:"thinking,omitempty"`
	Done     bool   `json:"done"`
}

// NDJSONChatOptions configures a client against a locally-hosted runtime
// that speaks line-delimited JSON instead of SSE.
type NDJSONChatOptions struct {
	BaseURL    string
	ChatPath   string // defaults to "/api/chat"
	HTTPClient *http.Client
}

// NDJSONChatClient talks to a backend that streams chat responses as
// line-delimited JSON rather than SSE (the local CPU/MLX runtime family).
type NDJSONChatClient struct {
	baseURL string
	path    string
	client  *http.Client
}

// NewNDJSONChatClient builds a client scoped to one backend's base URL.
func NewNDJSONChatClient(opts NDJSONChatOptions) *NDJSONChatClient {
	path := opts.ChatPath
	if path == "" {
		path = "/api/chat"
	}
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(ClientOptions{ConnectTimeout: 5 * time.Second})
	}
	return &NDJSONChatClient{baseURL: strings.TrimRight(opts.BaseURL, "/"), path: path, client: client}
}

type ndjsonRequestBody struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// Chat performs a non-streaming call by draining the line stream and
// concatenating content into a single response.
func (c *NDJSONChatClient) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	chunks, cancel, err := c.stream(ctx, req, false)
	if err != nil {
		return models.ChatResponse{}, err
	}
	defer cancel()

	var content strings.Builder
	model := req.Model
	for chunk := range chunks {
		if chunk.Model != "" {
			model = chunk.Model
		}
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
		}
	}

	return models.ChatResponse{
		Model:   model,
		Created: time.Now(),
		Choices: []models.ChatChoice{{Message: models.ChatMessage{Role: "assistant", Content: content.String()}, FinishReason: "stop"}},
	}, nil
}

// ChatStream performs a streaming call, translating each NDJSON line into a
// ChatChunk as it arrives.
func (c *NDJSONChatClient) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error) {
	return c.stream(ctx, req, true)
}

func (c *NDJSONChatClient) stream(ctx context.Context, req models.ChatRequest, streaming bool) (<-chan models.ChatChunk, func() error, error) {
	body, err := json.Marshal(ndjsonRequestBody{Model: req.Model, Messages: req.Messages, Stream: streaming})
	if err != nil {
		return nil, nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, nil, &StatusError{Status: resp.StatusCode, Err: fmt.Errorf("upstream: ndjson chat returned status %d", resp.StatusCode)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	forward := func(ctx context.Context, yield YieldFunc) {
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var parsed ndjsonLine
			if err := json.Unmarshal(line, &parsed); err != nil {
				continue
			}
			chunk := models.ChatChunk{
				Model:    parsed.Model,
				Created:  time.Now(),
				Thinking: parsed.Thinking,
				Done:     parsed.Done,
			}
			if parsed.Message.Content != "" {
				chunk.Choices = []models.ChunkDelta{{Delta: models.ChatMessage{Role: "assistant", Content: parsed.Message.Content}}}
			}
			if !yield(chunk) {
				return
			}
			if parsed.Done {
				return
			}
		}
	}

	chunks, cancel := Forward(ctx, resp.Body.Close, forward)
	return chunks, cancel, nil
}
