package eventring

import (
	"log/slog"

	"github.com/rcrowley/go-metrics"
)

type options struct {
	logger   *slog.Logger
	registry metrics.Registry
}

// Option configures an EventRing.
type Option func(*options)

// WithLogger sets the logger for ring diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry registers the eventring.* counters in reg.
func WithRegistry(reg metrics.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registry = reg
		}
	}
}
