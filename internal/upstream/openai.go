package upstream

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/localai/gateway/internal/models"
)

// OpenAIOptions configure an OpenAIClient bound to one backend's base URL.
type OpenAIOptions struct {
	BaseURL string
	APIKey  string // optional; local runtimes that speak the OpenAI wire shape rarely require one
	Extra   []option.RequestOption
}

// OpenAIClient talks to any backend that speaks the OpenAI chat/embeddings/
// images wire protocol — hosted OpenAI itself, or a local GPU runtime that
// reimplements the same surface.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client scoped to one backend's base URL.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("upstream: openai client requires a base url")
	}
	key := opts.APIKey
	if key == "" {
		key = "unused" // the SDK requires a non-empty key even against keyless local runtimes
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")),
	}
	reqOpts = append(reqOpts, opts.Extra...)
	client := openai.NewClient(reqOpts...)
	return &OpenAIClient{client: &client}, nil
}

// Chat performs a non-streaming chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, buildChatParams(req))
	if err != nil {
		return models.ChatResponse{}, err
	}
	return convertChatResponse(*resp), nil
}

// ChatStream performs a streaming chat completion.
func (c *OpenAIClient) ChatStream(ctx context.Context, req models.ChatRequest) (<-chan models.ChatChunk, func() error, error) {
	params := buildChatParams(req)
	params.StreamOptions.IncludeUsage = param.NewOpt(true)
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, nil, err
	}

	forward := func(ctx context.Context, yield YieldFunc) {
		for stream.Next() {
			if !yield(convertChatChunk(stream.Current())) {
				return
			}
		}
	}
	chunks, cancel := Forward(ctx, stream.Close, forward)
	return chunks, cancel, nil
}

// Embed creates embeddings.
func (c *OpenAIClient) Embed(ctx context.Context, req models.EmbeddingsRequest) (models.EmbeddingsResponse, error) {
	if len(req.Input) == 0 {
		return models.EmbeddingsResponse{}, errors.New("upstream: embeddings input required")
	}
	params := openai.EmbeddingNewParams{Model: openai.EmbeddingModel(req.Model)}
	if len(req.Input) == 1 {
		params.Input.OfString = param.NewOpt(req.Input[0])
	} else {
		params.Input.OfArrayOfStrings = append(params.Input.OfArrayOfStrings, req.Input...)
	}
	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return models.EmbeddingsResponse{}, err
	}
	return convertEmbeddingsResponse(*resp), nil
}

// GenerateImages calls the Images API.
func (c *OpenAIClient) GenerateImages(ctx context.Context, req models.ImageRequest) (models.ImageResponse, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return models.ImageResponse{}, errors.New("upstream: prompt required")
	}
	params := openai.ImageGenerateParams{Model: openai.ImageModel(req.Model), Prompt: prompt}
	if req.N > 0 {
		params.N = param.NewOpt(int64(req.N))
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.ResponseFormat != "" {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormat(req.ResponseFormat)
	}
	resp, err := c.client.Images.Generate(ctx, params)
	if err != nil {
		return models.ImageResponse{}, err
	}
	return convertImageResponse(*resp), nil
}

func buildChatParams(req models.ChatRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch strings.ToLower(msg.Role) {
		case "system":
			messages = append(messages, openai.SystemMessage(msg.Content))
		case "assistant":
			messages = append(messages, openai.ChatCompletionMessageParamOfAssistant(msg.Content))
		default:
			union := openai.UserMessage(msg.Content)
			if name := strings.TrimSpace(msg.Name); name != "" && union.OfUser != nil {
				union.OfUser.Name = param.NewOpt(name)
			}
			messages = append(messages, union)
		}
	}

	params := openai.ChatCompletionNewParams{Model: openai.ChatModel(req.Model), Messages: messages}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Temperature))
	}
	if req.TopP != nil {
		params.TopP = param.NewOpt(float64(*req.TopP))
	}
	if req.MaxTokens != nil {
		params.MaxTokens = param.NewOpt(int64(*req.MaxTokens))
	}
	if len(req.Stop) == 1 {
		params.Stop.OfString = param.NewOpt(req.Stop[0])
	} else if len(req.Stop) > 1 {
		params.Stop.OfStringArray = append(params.Stop.OfStringArray, req.Stop...)
	}
	return params
}

func convertChatResponse(resp openai.ChatCompletion) models.ChatResponse {
	choices := make([]models.ChatChoice, 0, len(resp.Choices))
	for _, choice := range resp.Choices {
		choices = append(choices, models.ChatChoice{
			Index:        int(choice.Index),
			Message:      models.ChatMessage{Role: string(choice.Message.Role), Content: choice.Message.Content},
			FinishReason: choice.FinishReason,
		})
	}
	return models.ChatResponse{
		ID:      resp.ID,
		Created: time.Unix(resp.Created, 0),
		Model:   resp.Model,
		Choices: choices,
		Usage: models.Usage{
			PromptTokens:     int32(resp.Usage.PromptTokens),
			CompletionTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:      int32(resp.Usage.TotalTokens),
		},
	}
}

func convertChatChunk(chunk openai.ChatCompletionChunk) models.ChatChunk {
	choices := make([]models.ChunkDelta, 0, len(chunk.Choices))
	for _, choice := range chunk.Choices {
		choices = append(choices, models.ChunkDelta{
			Index:        int(choice.Index),
			Delta:        models.ChatMessage{Role: choice.Delta.Role, Content: choice.Delta.Content},
			FinishReason: choice.FinishReason,
		})
	}
	return models.ChatChunk{
		ID:      chunk.ID,
		Model:   chunk.Model,
		Created: time.Unix(chunk.Created, 0),
		Choices: choices,
		Usage:   convertUsagePointer(chunk.Usage),
	}
}

func convertUsagePointer(u openai.CompletionUsage) *models.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0 {
		return nil
	}
	usage := models.Usage{
		PromptTokens:     int32(u.PromptTokens),
		CompletionTokens: int32(u.CompletionTokens),
		TotalTokens:      int32(u.TotalTokens),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return &usage
}

func convertImageResponse(resp openai.ImagesResponse) models.ImageResponse {
	data := make([]models.ImageData, 0, len(resp.Data))
	for _, item := range resp.Data {
		data = append(data, models.ImageData{B64JSON: item.B64JSON, URL: item.URL, RevisedPrompt: item.RevisedPrompt})
	}
	return models.ImageResponse{Created: time.Unix(resp.Created, 0), Data: data}
}

func convertEmbeddingsResponse(resp openai.CreateEmbeddingResponse) models.EmbeddingsResponse {
	embeddings := make([]models.Embedding, 0, len(resp.Data))
	for _, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		embeddings = append(embeddings, models.Embedding{Index: int(item.Index), Vector: vec})
	}
	return models.EmbeddingsResponse{
		Model:      resp.Model,
		Embeddings: embeddings,
		Usage:      models.Usage{PromptTokens: int32(resp.Usage.PromptTokens), TotalTokens: int32(resp.Usage.TotalTokens)},
	}
}
