package kvstore

import (
	"time"

	"github.com/juju/clock"
	"github.com/vpio/server/internal/utils/metrics"
	"go.uber.org/zap"
)

const (
	defaultProbeTimeout     = 3 * time.Second
	defaultOperationTimeout = 2 * time.Second
)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for TTL bookkeeping.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithProbeTimeout bounds the connectivity probe run at construction.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithOperationTimeout bounds every call made against the remote tier.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}
