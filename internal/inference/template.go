package inference

import (
	"context"
	"fmt"
	"strings"
)

var openings = []string{
	"Thanks for reaching out to support.",
	"Thank you for your patience while we looked into this.",
	"We have reviewed your request again.",
	"Here is an updated answer to your request.",
}

var genericSteps = []string{
	"Sign out of the application and sign back in.",
	"Clear the browser cache or restart the client application.",
	"Retry the action and note the exact time and any error message shown.",
}

type templateClient struct{}

// NewTemplate returns a backend that assembles an answer from the supplied
// passages without calling a model. Confidence is the best passage score.
func NewTemplate() Client {
	return templateClient{}
}

func (templateClient) Name() string {
	return "template"
}

func (templateClient) Generate(ctx context.Context, req Request) (Generation, error) {
	if err := ctx.Err(); err != nil {
		return Generation{}, err
	}

	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}

	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString(openings[(attempt-1)%len(openings)])

	if len(req.Passages) == 0 {
		b.WriteString(" We could not find a documented fix for this issue yet, so please try the following:\n")
		writeSteps(&b, genericSteps)
		b.WriteString("\nIf the problem continues, reply with the details above and an engineer will follow up.")
		return Generation{Text: b.String(), Confidence: 0.1}, nil
	}

	// Later attempts lead with the next passage so the answer is not repeated.
	lead := req.Passages[(attempt-1)%len(req.Passages)]
	fmt.Fprintf(&b, " Based on our guide %q, please follow these steps:\n", lead.Title)
	steps := sentences(lead.Content)
	if len(steps) == 0 {
		steps = genericSteps
	}
	writeSteps(&b, steps)
	for _, p := range req.Passages {
		if p.ID != lead.ID {
			fmt.Fprintf(&b, "\nSee also: %s.", p.Title)
		}
	}
	b.WriteString("\n\nIf the issue persists after these steps, reply to this message and we will follow up.")

	best := 0.0
	for _, p := range req.Passages {
		if p.Score > best {
			best = p.Score
		}
	}
	return Generation{Text: b.String(), Confidence: clamp01(best)}, nil
}

func writeSteps(b *strings.Builder, steps []string) {
	for i, s := range steps {
		fmt.Fprintf(b, "%d. %s\n", i+1, s)
	}
}

func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-*0123456789) "))
		if p != "" {
			out = append(out, p+".")
		}
	}
	return out
}
