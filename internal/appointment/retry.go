package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	retryInitialInterval = 50 * time.Millisecond
	retryMaxInterval     = time.Second
)

// withStorageRetry runs op and retries it with exponential backoff while it
// fails with ErrStorageUnavailable, at most attempts extra times. Any other
// error, including ErrConflict, is returned immediately.
func withStorageRetry[T any](ctx context.Context, attempts int, log *zap.Logger, name string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts)), ctx)

	result, err := backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !errors.Is(err, ErrStorageUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy, func(err error, wait time.Duration) {
		log.Warn("storage unavailable, retrying",
			zap.String("op", name),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})

	if err != nil && !errors.Is(err, ErrStorageUnavailable) &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return result, err
}
