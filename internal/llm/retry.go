package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// classify decides whether a transport error is worth another attempt and
// which kind it surfaces as when it is not.
func classify(err error) (retryable bool, kind ErrorKind) {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		if se.Code == http.StatusTooManyRequests || se.Code >= 500 {
			return true, KindUnavailable
		}
		return false, KindRejected
	case errors.Is(err, errMalformed):
		return false, KindMalformed
	case errors.Is(err, context.DeadlineExceeded):
		return false, KindTimeout
	case errors.Is(err, context.Canceled):
		return false, KindUnavailable
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return false, KindTimeout
	}
	// Connection resets, refused dials, truncated bodies.
	return true, KindUnavailable
}

func statusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// backoffDelay returns base * 2^(attempt-1), capped at max.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
