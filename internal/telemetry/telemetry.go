// Package telemetry provides an explicit operation-timing wrapper that
// components call through deliberately, instead of instrumenting
// functions from the outside.
package telemetry

import (
	"log/slog"
	"time"
)

// Middleware times named operations and logs their outcome.
type Middleware struct {
	logger *slog.Logger
}

func NewMiddleware(logger *slog.Logger) *Middleware {
	return &Middleware{logger: logger}
}

// Observe runs fn, recording its duration and error state under the
// operation name.
func (m *Middleware) Observe(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if err != nil {
		m.logger.Warn("operation failed",
			slog.String("operation", operation),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return err
	}

	m.logger.Debug("operation completed",
		slog.String("operation", operation),
		slog.Duration("elapsed", elapsed))
	return nil
}
