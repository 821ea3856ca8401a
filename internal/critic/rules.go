package critic

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// Rules are the hard quality rules every draft must pass before its
// confidence is compared with the threshold.
type Rules struct {
	MinWords   int               `yaml:"min_words"`
	MaxWords   int               `yaml:"max_words"`
	Required   []RequiredElement `yaml:"required"`
	Prohibited []string          `yaml:"prohibited"`
	// OffTopicMinOverlap is the share of ticket vocabulary a draft must reuse.
	OffTopicMinOverlap float64 `yaml:"off_topic_min_overlap"`
	// DuplicateSimilarity is the vocabulary similarity to an earlier draft at
	// or above which a draft counts as a repeat.
	DuplicateSimilarity float64        `yaml:"duplicate_similarity"`
	Reference           ReferenceCheck `yaml:"reference"`
}

// RequiredElement is a pattern the draft must match.
type RequiredElement struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

// ReferenceCheck compares the draft with the closest knowledge-base article.
type ReferenceCheck struct {
	Enabled       bool    `yaml:"enabled"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// DefaultRules are used when no rules file is configured.
func DefaultRules() Rules {
	r := Rules{
		MinWords: 15,
		MaxWords: 350,
		Required: []RequiredElement{
			{Name: "numbered steps", Pattern: `(?m)^\s*\d+[.)]\s+\S`},
		},
		Prohibited: []string{
			"guaranteed refund",
			"we guarantee",
			"legal advice",
			"internal use only",
			"your password is",
			"lawsuit",
		},
		OffTopicMinOverlap:  0.05,
		DuplicateSimilarity: 0.9,
	}
	if err := r.compile(); err != nil {
		panic(err)
	}
	return r
}

// LoadRules reads rules from a YAML file. An empty path yields DefaultRules.
// Fields absent from the file keep their default values.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, apperrors.Configuration("CRITIC_RULES_FILE", "%v", err)
	}
	return ParseRules(raw)
}

// ParseRules decodes YAML rules over the defaults and validates them.
func ParseRules(raw []byte) (Rules, error) {
	rules := DefaultRules()
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, apperrors.Configuration("CRITIC_RULES_FILE", "invalid yaml: %v", err)
	}
	if err := rules.validate(); err != nil {
		return Rules{}, err
	}
	if err := rules.compile(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r *Rules) validate() error {
	if r.MinWords < 0 || (r.MaxWords > 0 && r.MaxWords < r.MinWords) {
		return apperrors.Configuration("CRITIC_RULES_FILE", "need 0 <= min_words <= max_words")
	}
	if r.OffTopicMinOverlap < 0 || r.OffTopicMinOverlap > 1 {
		return apperrors.Configuration("CRITIC_RULES_FILE", "off_topic_min_overlap must be within [0,1]")
	}
	if r.DuplicateSimilarity < 0 || r.DuplicateSimilarity > 1 {
		return apperrors.Configuration("CRITIC_RULES_FILE", "duplicate_similarity must be within [0,1]")
	}
	if r.Reference.MinSimilarity < 0 || r.Reference.MinSimilarity > 1 {
		return apperrors.Configuration("CRITIC_RULES_FILE", "reference.min_similarity must be within [0,1]")
	}
	return nil
}

func (r *Rules) compile() error {
	for i := range r.Required {
		re, err := regexp.Compile(r.Required[i].Pattern)
		if err != nil {
			return apperrors.Configuration("CRITIC_RULES_FILE", "required %q: %v", r.Required[i].Name, err)
		}
		r.Required[i].re = re
	}
	for i, p := range r.Prohibited {
		r.Prohibited[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return nil
}

// String summarises the rules for startup logs.
func (r Rules) String() string {
	return fmt.Sprintf("words=[%d,%d] required=%d prohibited=%d reference=%v",
		r.MinWords, r.MaxWords, len(r.Required), len(r.Prohibited), r.Reference.Enabled)
}
