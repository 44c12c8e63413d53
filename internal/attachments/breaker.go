package attachments

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mobistudy/indicators-backend-go/internal/metrics"
)

// BreakerStore wraps a Store with a circuit breaker so a failing backend
// stops being hammered while a run walks many results.
type BreakerStore struct {
	next   Store
	cb     *gobreaker.CircuitBreaker[io.ReadCloser]
	name   string
	logger zerolog.Logger
}

// NewBreakerStore wraps next. The circuit opens after 5 consecutive backend
// failures and probes again after timeout. Missing attachments, invalid paths
// and context cancellation never count as failures.
func NewBreakerStore(next Store, name string, timeout time.Duration, logger zerolog.Logger) *BreakerStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	b := &BreakerStore{next: next, name: name, logger: logger}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[io.ReadCloser](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrInvalidPath) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Attachment circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return b
}

func (b *BreakerStore) OpenReadStream(ctx context.Context, studyKey, userKey string, taskID int, fileName string) (io.ReadCloser, error) {
	rc, err := b.cb.Execute(func() (io.ReadCloser, error) {
		return b.next.OpenReadStream(ctx, studyKey, userKey, taskID, fileName)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "not_found").Inc()
	case errors.Is(err, ErrInvalidPath):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "invalid").Inc()
	case errors.Is(err, context.Canceled):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "canceled").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}

	return rc, err
}

// State reports the current breaker state
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
