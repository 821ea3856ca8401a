package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: []string{}},
		{name: "stopwords and punctuation", in: "The invoice is WRONG, the invoice!", want: []string{"invoice", "wrong"}},
		{name: "digits kept", in: "error 502 on v2 api", want: []string{"error", "502", "v2", "api"}},
		{name: "single letters dropped", in: "a b c payment", want: []string{"payment"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, Tokenize(tc.in)); diff != "" {
				t.Fatalf("Tokenize mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrQuery(t *testing.T) {
	if got := orQuery("Login fails after password reset"); got != "login | fails | after | password | reset" {
		t.Fatalf("unexpected query %q", got)
	}
	if got := orQuery("the a of"); got != "" {
		t.Fatalf("expected empty query, got %q", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Fatal("pgx.ErrNoRows should be not found")
	}
	if !IsNotFound(fmt.Errorf("ticket x: %w", apperrors.ErrNotFound)) {
		t.Fatal("ErrNotFound should be not found")
	}
	if IsNotFound(errors.New("boom")) {
		t.Fatal("arbitrary error should not be not found")
	}
}

func TestUniqueAsInvariant(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "critic_verdicts_one_accept_idx"}
	if err := uniqueAsInvariant(dup, "verdict"); !errors.Is(err, apperrors.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
	other := &pgconn.PgError{Code: "23503"}
	if err := uniqueAsInvariant(other, "verdict"); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if err := uniqueAsInvariant(nil, "verdict"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
