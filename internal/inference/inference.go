// Package inference generates resolution text and a self-reported confidence.
// Callers treat every backend as opaque and non-deterministic.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// Passage is a knowledge-base excerpt offered as generation context.
type Passage struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// Request is one generation call.
type Request struct {
	System string
	Prompt string
	// Passages and Directives are also rendered into Prompt; backends that do
	// not call a model use them directly.
	Passages   []Passage
	Directives []string
	Attempt    int
	MaxTokens  int64
}

// Generation is the result of a Request. Confidence is within [0,1].
type Generation struct {
	Text       string
	Confidence float64
}

// Client is the Inference Service boundary.
type Client interface {
	Generate(ctx context.Context, req Request) (Generation, error)
	Name() string
}

// New builds the backend selected by cfg.Provider.
func New(cfg config.InferenceConfig, logger *zap.Logger) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "template":
		return NewTemplate(), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, apperrors.Configuration("INFERENCE_API_KEY", "required for provider openai")
		}
		return NewOpenAI(cfg, logger), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, apperrors.Configuration("INFERENCE_API_KEY", "required for provider anthropic")
		}
		return NewAnthropic(cfg, logger), nil
	default:
		return nil, apperrors.Configuration("INFERENCE_PROVIDER", "unknown provider %q", cfg.Provider)
	}
}

// answer is the JSON object model backends are asked to return.
type answer struct {
	Resolution string  `json:"resolution" jsonschema:"description=Customer-facing resolution text"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1,description=Self-assessed probability the resolution solves the issue"`
}

const answerInstruction = `Respond with a single JSON object: {"resolution": "<text for the customer>", "confidence": <number between 0 and 1>}.`

// parseGeneration reads an answer object from raw model output. Output that is
// not such an object is returned verbatim with zero confidence.
func parseGeneration(raw string) Generation {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		var a answer
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), &a); err == nil && a.Resolution != "" {
			return Generation{Text: strings.TrimSpace(a.Resolution), Confidence: clamp01(a.Confidence)}
		}
	}
	return Generation{Text: trimmed, Confidence: 0}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// classify marks provider failures worth retrying as transient. Client
// errors other than timeouts and rate limits are returned as-is.
func classify(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.Transient(op, err)
}
