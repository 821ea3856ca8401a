package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
)

type openaiClient struct {
	client    openai.Client
	model     string
	maxTokens int64
	schema    any
	logger    *zap.Logger
}

// NewOpenAI builds a backend on the chat completions API with a strict JSON
// schema response format.
func NewOpenAI(cfg config.InferenceConfig, logger *zap.Logger) Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	return &openaiClient{
		client:    openai.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
		schema:    reflector.Reflect(answer{}),
		logger:    logger,
	}
}

func (c *openaiClient) Name() string {
	return "openai:" + c.model
}

func (c *openaiClient) Generate(ctx context.Context, req Request) (Generation, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System + "\n" + answerInstruction),
			openai.UserMessage(req.Prompt),
		},
		MaxCompletionTokens: openai.Int(maxTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "resolution",
					Schema: c.schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return Generation{}, classify("openai generate", status, err)
	}
	if len(resp.Choices) == 0 {
		return Generation{}, classify("openai generate", 0, fmt.Errorf("no choices in response"))
	}

	c.logger.Debug("inference completed",
		zap.String("provider", "openai"),
		zap.String("model", c.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return parseGeneration(resp.Choices[0].Message.Content), nil
}
