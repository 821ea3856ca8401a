package inference

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
)

type anthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// NewAnthropic builds a backend on the Messages API.
func NewAnthropic(cfg config.InferenceConfig, logger *zap.Logger) Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &anthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

func (c *anthropicClient) Name() string {
	return "anthropic:" + c.model
}

func (c *anthropicClient) Generate(ctx context.Context, req Request) (Generation, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System + "\n" + answerInstruction}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return Generation{}, classify("anthropic generate", status, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.logger.Debug("inference completed",
		zap.String("provider", "anthropic"),
		zap.String("model", c.model),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.String("stop_reason", string(resp.StopReason)),
	)

	return parseGeneration(text.String()), nil
}
