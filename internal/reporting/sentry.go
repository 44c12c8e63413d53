// Package reporting sends scope-level run failures to Sentry.
package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
)

// Config holds Sentry settings. An empty DSN disables reporting.
type Config struct {
	DSN         string  `koanf:"dsn"`
	Environment string  `koanf:"environment"`
	Release     string  `koanf:"release"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Init initializes the global Sentry client and returns its hub, or nil
// when no DSN is configured.
func Init(cfg Config, logger zerolog.Logger) (*sentry.Hub, error) {
	if cfg.DSN == "" {
		logger.Info().Msg("Sentry DSN not configured, error reporting disabled")
		return nil, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
	}); err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}

	logger.Info().Str("environment", cfg.Environment).Msg("Sentry initialized")
	return sentry.CurrentHub(), nil
}

// Flush waits for buffered events to be sent
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Reporter captures run failures on a Sentry hub
type Reporter struct {
	hub    *sentry.Hub
	logger zerolog.Logger
}

// NewReporter creates a reporter on hub
func NewReporter(hub *sentry.Hub, logger zerolog.Logger) *Reporter {
	return &Reporter{hub: hub, logger: logger}
}

// CaptureRunFailure sends err tagged with the producer and scope
func (r *Reporter) CaptureRunFailure(_ context.Context, producer string, scope analysis.Scope, err error) {
	if err == nil || r.hub == nil {
		return
	}

	r.hub.WithScope(func(s *sentry.Scope) {
		s.SetTag("producer", producer)
		s.SetTag("study", scope.StudyKey)
		s.SetContext("run", sentry.Context{
			"studyKey": scope.StudyKey,
			"userKey":  scope.UserKey,
			"taskIds":  scope.TaskIDs,
		})
		if id := r.hub.CaptureException(err); id != nil {
			r.logger.Debug().Str("event", string(*id)).Msg("Run failure captured in Sentry")
		}
	})
}
