package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

// WithTimeout runs fn on a context bounded by timeout and stops waiting
// once that context ends. Exceeding the limit yields an error matching both
// ErrTimeout and context.DeadlineExceeded; a cancelled parent yields its
// own error. A non-positive timeout runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if timeout <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()

	var err error
	select {
	case err = <-done:
		if err == nil || bounded.Err() == nil {
			return err
		}
	case <-bounded.Done():
	}
	if parent := ctx.Err(); parent != nil {
		return fmt.Errorf("%s: %w", op, parent)
	}
	return fmt.Errorf("%s: %w after %v: %w", op, apperrors.ErrTimeout, timeout, context.DeadlineExceeded)
}
