// Package retry runs knowledge store and inference calls with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/support-iq/pkg/util/errorutil"
)

// Policy bounds a retried call. MaxTries counts the first call.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout applies to each individual try when positive.
	Timeout time.Duration
}

// Do calls op until it succeeds, fails permanently, or MaxTries is reached.
// Exhausting the bound returns an error wrapping ErrTransientIO.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	tries := p.MaxTries
	if tries == 0 {
		tries = 1
	}

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		}
		defer cancel()

		res, err := op(callCtx)
		if err != nil && Permanent(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if logger != nil {
				logger.Warn("retrying call",
					zap.String("call", name),
					zap.Int("attempt", attempt),
					zap.Duration("wait", wait),
					zap.Error(err),
				)
			}
		}),
	)
	if err == nil || Permanent(err) || errors.Is(err, apperrors.ErrTransientIO) {
		return result, err
	}
	return result, apperrors.Transient(name, err)
}

// Permanent reports whether err cannot be fixed by calling again.
func Permanent(err error) bool {
	var domainErr *apperrors.DomainError
	switch {
	case errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, apperrors.ErrNotFound):
		return true
	case errors.Is(err, apperrors.ErrInvariantViolation), errors.Is(err, apperrors.ErrConfiguration):
		return true
	case errors.As(err, &domainErr) && domainErr.HTTPStatus < 500:
		return true
	}
	return false
}
