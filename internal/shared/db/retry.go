package db

import (
	"context"
	"time"

	apperrors "github.com/vetiver-inc/vetiver/internal/shared/errors"
)

// DeadlockRetryAttempts bounds how often a deadlocked statement batch is
// replayed before the error is surfaced.
const DeadlockRetryAttempts = 3

// RunWithDeadlockRetry executes fn, replaying it when it fails with a
// MySQL deadlock (error 1213). Each attempt must be self-contained: fn is
// expected to open its own transaction so the failed attempt is already
// rolled back when the next one starts. Other backends never report 1213,
// so they get exactly one attempt.
func RunWithDeadlockRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= DeadlockRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !apperrors.IsDeadlockError(err) {
			return err
		}
		if attempt == DeadlockRetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}
