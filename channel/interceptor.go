package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned by the RateLimit interceptor when the token
// bucket is empty.
var ErrRateLimited = errors.New("channel: rate limit exceeded")

// CallFunc is the calling surface interceptors wrap. Both Channel.Call and
// the proxy's Call satisfy it.
type CallFunc func(ctx context.Context, method string, args []any) (json.RawMessage, error)

// Interceptor decorates a CallFunc. The kernel itself applies none of these;
// retry, timeouts and throttling are caller policy, opted into per client.
type Interceptor func(next CallFunc) CallFunc

// Chain composes interceptors into one. Chain(A, B, C)(call) runs A outside
// B outside C outside the call itself.
func Chain(interceptors ...Interceptor) Interceptor {
	return func(next CallFunc) CallFunc {
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = interceptors[i](next)
		}
		return next
	}
}

// Logging records each call's method, duration and outcome.
func Logging(logger *slog.Logger) Interceptor {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, args []any) (json.RawMessage, error) {
			start := time.Now()
			result, err := next(ctx, method, args)
			if err != nil {
				logger.Warn("rpc call failed", "method", method, "duration", time.Since(start), "err", err)
			} else {
				logger.Debug("rpc call", "method", method, "duration", time.Since(start))
			}
			return result, err
		}
	}
}

// Timeout bounds each call with a deadline derived from the caller's context.
func Timeout(d time.Duration) Interceptor {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, args []any) (json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, method, args)
		}
	}
}

// RateLimit rejects calls above r per second with the given burst, using a
// token bucket.
func RateLimit(r float64, burst int) Interceptor {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, args []any) (json.RawMessage, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, method, args)
		}
	}
}

// Retry re-issues calls that failed before reaching the worker, with
// exponential backoff. Remote errors, the caller's own cancellation, and a
// disposed channel are never retried: the first is a real answer, the other
// two cannot heal.
func Retry(maxRetries int, baseDelay time.Duration) Interceptor {
	return func(next CallFunc) CallFunc {
		return func(ctx context.Context, method string, args []any) (json.RawMessage, error) {
			result, err := next(ctx, method, args)
			for attempt := 0; attempt < maxRetries && retryable(err); attempt++ {
				select {
				case <-time.After(baseDelay * time.Duration(1<<attempt)):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				result, err = next(ctx, method, args)
			}
			return result, err
		}
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrChannelDisposed) {
		return false
	}
	return true
}
