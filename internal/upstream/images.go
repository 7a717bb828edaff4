package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/localai/gateway/internal/models"
)

// ImageClient is the minimal contract the images pipeline drives: produce
// base64-encoded image bytes for a prompt. Persistence and response-format
// policy live in the pipeline, not here.
type ImageClient interface {
	Generate(ctx context.Context, req models.ImageRequest) ([]string, error)
}

// MockImageClient returns a deterministic placeholder SVG without making
// any network call — used for local development and tests when no real
// image engine is configured.
type MockImageClient struct{}

func NewMockImageClient() *MockImageClient { return &MockImageClient{} }

func (m *MockImageClient) Generate(ctx context.Context, req models.ImageRequest) ([]string, error) {
	n := req.N
	if n <= 0 {
		n = 1
	}
	width, height := parseSize(req.Size)
	svg := mockSVG(req.Prompt, width, height)
	encoded := base64.StdEncoding.EncodeToString(svg)

	out := make([]string, n)
	for i := range out {
		out[i] = encoded
	}
	return out, nil
}

// mockSVG renders a deterministic placeholder image carrying the request's
// prompt, so a caller with no image engine configured still gets a distinct
// image per prompt rather than a blank tile.
func mockSVG(prompt string, width, height int) []byte {
	p := strings.TrimSpace(prompt)
	if len(p) > 400 {
		p = p[:400] + "…"
	}
	p = html.EscapeString(p)

	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, height, width, height)
	b.WriteString(`<rect width="100%" height="100%" fill="#0b0d10"/>`)
	fmt.Fprintf(&b, `<rect x="24" y="24" width="%d" height="%d" fill="#0e1217" stroke="rgba(231,237,246,0.18)"/>`, maxInt(0, width-48), maxInt(0, height-48))
	b.WriteString(`<text x="48" y="72" fill="#e7edf6" font-family="ui-sans-serif, system-ui" font-size="20" font-weight="600">mock images backend</text>`)
	fmt.Fprintf(&b, `<foreignObject x="48" y="104" width="%d" height="%d">`, maxInt(0, width-96), maxInt(0, height-152))
	fmt.Fprintf(&b, `<div xmlns="http://www.w3.org/1999/xhtml" style="color:#c1ccdb;font-family:ui-sans-serif,system-ui;font-size:14px;line-height:1.5;white-space:pre-wrap;">%s</div>`, p)
	b.WriteString(`</foreignObject></svg>`)
	return []byte(b.String())
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// A1111Options configures a client against an Automatic1111-style
// txt2img HTTP API.
type A1111Options struct {
	BaseURL    string
	HTTPClient *http.Client
}

// A1111ImageClient calls a Stable-Diffusion-WebUI-compatible backend.
type A1111ImageClient struct {
	baseURL string
	client  *http.Client
}

func NewA1111ImageClient(opts A1111Options) *A1111ImageClient {
	client := opts.HTTPClient
	if client == nil {
		client = NewHTTPClient(ClientOptions{ConnectTimeout: 5 * time.Second})
	}
	return &A1111ImageClient{baseURL: strings.TrimRight(opts.BaseURL, "/"), client: client}
}

type a1111Request struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	Seed           int64   `json:"seed,omitempty"`
	CFGScale       float32 `json:"cfg_scale,omitempty"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	BatchSize      int     `json:"batch_size,omitempty"`
}

type a1111Response struct {
	Images []string `json:"images"`
}

// allowedImageOptions is a conservative allowlist of extra generation knobs
// forwarded to an image backend's raw options map: upstream servers vary
// widely in what they accept, so anything outside this set is dropped.
var allowedImageOptions = map[string]bool{
	"seed": true, "steps": true, "num_inference_steps": true,
	"guidance": true, "guidance_scale": true, "cfg_scale": true,
	"negative_prompt": true, "sampler": true, "scheduler": true,
	"style": true, "quality": true,
}

// filterImageOptions drops any key not on the allowlist, and any blank
// string or nil value.
func filterImageOptions(opts map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(opts))
	for k, v := range opts {
		if !allowedImageOptions[k] || v == nil {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func (c *A1111ImageClient) Generate(ctx context.Context, req models.ImageRequest) ([]string, error) {
	width, height := parseSize(req.Size)
	body := a1111Request{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Steps:          req.Steps,
		Width:          width,
		Height:         height,
		BatchSize:      req.N,
	}
	if req.Seed != nil {
		body.Seed = *req.Seed
	}
	if req.GuidanceScale != nil {
		body.CFGScale = *req.GuidanceScale
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var payloadMap map[string]interface{}
	if err := json.Unmarshal(encoded, &payloadMap); err != nil {
		return nil, err
	}
	for k, v := range filterImageOptions(req.Options) {
		payloadMap[k] = v
	}
	payload, err := json.Marshal(payloadMap)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Err: fmt.Errorf("upstream: a1111 txt2img returned status %d", resp.StatusCode)}
	}

	var parsed a1111Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Images, nil
}

func parseSize(size string) (int, int) {
	parts := strings.SplitN(size, "x", 2)
	if len(parts) != 2 {
		return 512, 512
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 512, 512
	}
	return w, h
}
