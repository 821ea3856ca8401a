package repository

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// Store bundles every repository the pipeline reads and writes.
type Store struct {
	Tickets     TicketRepository
	Triage      TriageRepository
	Drafts      DraftRepository
	Verdicts    VerdictRepository
	Transitions TransitionRepository
	Deployments DeploymentRepository
	Alerts      AlertRepository
	Feedback    FeedbackRepository
	Knowledge   KnowledgeRepository
}

// NewPostgresStore builds a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:     NewTicketRepository(pool),
		Triage:      NewTriageRepository(pool),
		Drafts:      NewDraftRepository(pool),
		Verdicts:    NewVerdictRepository(pool),
		Transitions: NewTransitionRepository(pool),
		Deployments: NewDeploymentRepository(pool),
		Alerts:      NewAlertRepository(pool),
		Feedback:    NewFeedbackRepository(pool),
		Knowledge:   NewKnowledgeRepository(pool),
	}
}

// IsNotFound reports whether err means the requested record does not exist,
// for both the pgx and in-memory implementations.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound)
}

const uniqueViolation = "23505"

// uniqueAsInvariant turns a unique-constraint failure into ErrInvariantViolation.
func uniqueAsInvariant(err error, what string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %s", what, apperrors.ErrInvariantViolation, pgErr.ConstraintName)
	}
	return err
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "at": {}, "be": {}, "but": {}, "by": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "i": {}, "in": {}, "is": {}, "it": {}, "my": {}, "not": {},
	"of": {}, "on": {}, "or": {}, "our": {}, "the": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"with": {}, "you": {},
}

// Tokenize lowercases text and returns its distinct content words in order of appearance.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// orQuery renders tokens as a to_tsquery expression matching any of them.
func orQuery(text string) string {
	return strings.Join(Tokenize(text), " | ")
}
