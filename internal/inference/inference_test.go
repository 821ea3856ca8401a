package inference

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/spec-kit/support-iq/internal/config"
	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

func TestParseGeneration(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Generation
	}{
		{
			name: "plain object",
			raw:  `{"resolution": "Reset your password.", "confidence": 0.82}`,
			want: Generation{Text: "Reset your password.", Confidence: 0.82},
		},
		{
			name: "fenced with prose",
			raw:  "Here you go:\n```json\n{\"resolution\": \"Clear cache\", \"confidence\": 0.5}\n```",
			want: Generation{Text: "Clear cache", Confidence: 0.5},
		},
		{
			name: "confidence clamped",
			raw:  `{"resolution": "x", "confidence": 1.7}`,
			want: Generation{Text: "x", Confidence: 1},
		},
		{
			name: "not json",
			raw:  "  Please restart the router.  ",
			want: Generation{Text: "Please restart the router.", Confidence: 0},
		},
		{
			name: "missing resolution",
			raw:  `{"confidence": 0.9}`,
			want: Generation{Text: `{"confidence": 0.9}`, Confidence: 0},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, parseGeneration(tc.raw)); diff != "" {
				t.Fatalf("parseGeneration mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("upstream")
	if err := classify("op", http.StatusTooManyRequests, base); !errors.Is(err, apperrors.ErrTransientIO) {
		t.Fatalf("429 should be transient: %v", err)
	}
	if err := classify("op", 0, base); !errors.Is(err, apperrors.ErrTransientIO) {
		t.Fatalf("network errors should be transient: %v", err)
	}
	if err := classify("op", http.StatusUnauthorized, base); errors.Is(err, apperrors.ErrTransientIO) {
		t.Fatalf("401 must not be transient: %v", err)
	}
	if err := classify("op", 0, context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, apperrors.ErrTransientIO) {
		t.Fatalf("cancellation must pass through: %v", err)
	}
}

func TestNewProviderSelection(t *testing.T) {
	logger := zap.NewNop()
	if c, err := New(config.InferenceConfig{Provider: "template"}, logger); err != nil || c.Name() != "template" {
		t.Fatalf("template: %v %v", c, err)
	}
	if _, err := New(config.InferenceConfig{Provider: "openai"}, logger); !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("openai without key should be a configuration error, got %v", err)
	}
	if _, err := New(config.InferenceConfig{Provider: "mystery"}, logger); !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("unknown provider should be a configuration error, got %v", err)
	}
	c, err := New(config.InferenceConfig{Provider: "anthropic", APIKey: "k", Model: "claude-test"}, logger)
	if err != nil || c.Name() != "anthropic:claude-test" {
		t.Fatalf("anthropic: %v %v", c, err)
	}
}

func TestTemplateUsesPassagesAndVariesByAttempt(t *testing.T) {
	client := NewTemplate()
	req := Request{
		Passages: []Passage{
			{ID: "kb-1", Title: "Resetting two-factor", Content: "Open security settings. Choose reset. Confirm by email.", Score: 0.7},
			{ID: "kb-2", Title: "Account recovery", Content: "Contact an admin. Verify identity.", Score: 0.4},
		},
		Attempt: 1,
	}
	first, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if first.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want best passage score", first.Confidence)
	}
	if !strings.Contains(first.Text, "1. Open security settings.") {
		t.Fatalf("expected numbered steps from lead passage:\n%s", first.Text)
	}

	req.Attempt = 2
	second, err := client.Generate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if second.Text == first.Text {
		t.Fatal("second attempt repeated the first answer")
	}
	if !strings.Contains(second.Text, "1. Contact an admin.") {
		t.Fatalf("expected second passage to lead:\n%s", second.Text)
	}
}

func TestTemplateWithoutPassages(t *testing.T) {
	gen, err := NewTemplate().Generate(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if gen.Confidence != 0.1 || !strings.Contains(gen.Text, "1. ") {
		t.Fatalf("unexpected fallback generation %+v", gen)
	}
}

func TestScriptedReplaysAndBlocks(t *testing.T) {
	s := NewScripted(
		Step{Generation: Generation{Text: "a", Confidence: 0.4}},
		Step{Block: true},
	)
	got, err := s.Generate(context.Background(), Request{Attempt: 1})
	if err != nil || got.Text != "a" {
		t.Fatalf("first step: %+v %v", got, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Generate(ctx, Request{Attempt: 2}); !errors.Is(err, context.Canceled) {
		t.Fatalf("blocking step should return context error, got %v", err)
	}
	if n := len(s.Requests()); n != 2 {
		t.Fatalf("recorded %d requests, want 2", n)
	}
}
