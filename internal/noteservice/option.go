package noteservice

import (
	"log/slog"
	"time"

	"github.com/starford/paravault/internal/metrics"
	"github.com/starford/paravault/internal/search"
)

// Option is a functional option for configuring the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Service) {
		if c != nil {
			s.metrics = c
		}
	}
}

// WithNotifier registers a receiver for committed changes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock sets the clock used for modification timestamps and ranking.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSearchOptions passes options through to the search index.
func WithSearchOptions(opts ...search.Option) Option {
	return func(s *Service) { s.searchOpts = append(s.searchOpts, opts...) }
}

// WithLoadWorkers bounds how many documents are parsed in parallel on load.
func WithLoadWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.loadWorkers = n
		}
	}
}

// WithLockTimeout bounds how long a mutation waits for its path locks.
// Zero waits as long as the caller's context allows.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) { s.lockTimeout = d }
}

// WithGraphLimits caps Neighborhood traversals.
func WithGraphLimits(maxDepth, maxNodes int) Option {
	return func(s *Service) {
		if maxDepth > 0 {
			s.maxDepth = maxDepth
		}
		if maxNodes > 0 {
			s.maxNeighbors = maxNodes
		}
	}
}
