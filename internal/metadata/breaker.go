package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/sakif/maratonei/internal/metrics"
)

// newBreaker builds the breaker for one upstream. It opens after five
// consecutive failures and probes again after thirty seconds.
func newBreaker[T any](name string, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A caller that gave up is not the upstream's fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("upstream", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
}

// call runs fn through cb and records the outcome. An open breaker is
// reported as ErrUnavailable.
func call[T any](cb *gobreaker.CircuitBreaker[T], fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := cb.Execute(fn)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordUpstream(cb.Name(), "rejected", time.Since(start))
		return result, fmt.Errorf("%w: %s: %v", ErrUnavailable, cb.Name(), err)
	case err != nil:
		metrics.RecordUpstream(cb.Name(), "error", time.Since(start))
		return result, err
	default:
		metrics.RecordUpstream(cb.Name(), "success", time.Since(start))
		return result, nil
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
