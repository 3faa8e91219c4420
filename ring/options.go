package ring

import (
	"log/slog"

	"github.com/rcrowley/go-metrics"
)

type options struct {
	name     string
	logger   *slog.Logger
	registry metrics.Registry
	limit    int
}

// Option configures a Ring.
type Option func(*options)

// WithName labels the ring in logs and metric names (ring.<name>.*).
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger for ring diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry registers the ring counters in reg instead of a private
// registry.
func WithRegistry(reg metrics.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registry = reg
		}
	}
}

// WithRecordLimit lowers the UpdateFromGuest bound below MaxRecords.
func WithRecordLimit(n int) Option {
	return func(o *options) {
		if n > 0 && n < MaxRecords {
			o.limit = n
		}
	}
}
