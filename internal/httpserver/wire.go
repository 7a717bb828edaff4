package httpserver

import "github.com/localai/gateway/internal/models"

// wireChatRequest is the OpenAI-shaped JSON body clients post to
// /v1/chat/completions.
type wireChatRequest struct {
	Model       string               `json:"model"`
	Messages    []models.ChatMessage `json:"messages"`
	Temperature *float32             `json:"temperature,omitempty"`
	TopP        *float32             `json:"top_p,omitempty"`
	MaxTokens   *int32               `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream,omitempty"`
	Stop        []string             `json:"stop,omitempty"`
}

func (w wireChatRequest) toModel() models.ChatRequest {
	return models.ChatRequest{
		Model:       w.Model,
		Messages:    w.Messages,
		Temperature: w.Temperature,
		TopP:        w.TopP,
		MaxTokens:   w.MaxTokens,
		Stream:      w.Stream,
		Stop:        w.Stop,
	}
}

// wireEmbeddingsRequest is the JSON body clients post to /v1/embeddings.
type wireEmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

func (w wireEmbeddingsRequest) toModel() models.EmbeddingsRequest {
	return models.EmbeddingsRequest{Model: w.Model, Input: w.Input}
}

// wireImageRequest is the JSON body clients post to /v1/images/generations.
type wireImageRequest struct {
	Model          string                 `json:"model"`
	Prompt         string                 `json:"prompt"`
	Size           string                 `json:"size"`
	ResponseFormat string                 `json:"response_format"`
	N              int                    `json:"n"`
	Steps          int                    `json:"steps"`
	Seed           *int64                 `json:"seed"`
	GuidanceScale  *float32               `json:"guidance_scale"`
	NegativePrompt string                 `json:"negative_prompt"`
	Options        map[string]interface{} `json:"options"`
}

func (w wireImageRequest) toModel() models.ImageRequest {
	return models.ImageRequest{
		Model:          w.Model,
		Prompt:         w.Prompt,
		Size:           w.Size,
		ResponseFormat: w.ResponseFormat,
		N:              w.N,
		Steps:          w.Steps,
		Seed:           w.Seed,
		GuidanceScale:  w.GuidanceScale,
		NegativePrompt: w.NegativePrompt,
		Options:        w.Options,
	}
}

// wireToolInvokeRequest is the JSON body clients post to /v1/tools/{name}.
type wireToolInvokeRequest struct {
	Arguments map[string]interface{} `json:"arguments"`
}
