package controller

import (
	"log/slog"

	"github.com/rcrowley/go-metrics"
)

type options struct {
	logger   *slog.Logger
	registry metrics.Registry
	maxSlots int
	maxPorts int
}

// Option configures a Controller.
type Option func(*options)

// WithLogger sets the logger passed down to the rings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry collects the controller, ring and event ring counters in reg.
func WithRegistry(reg metrics.Registry) Option {
	return func(o *options) {
		if reg != nil {
			o.registry = reg
		}
	}
}

// WithMaxSlots limits how many device slots EnableSlot hands out (1-255).
func WithMaxSlots(n int) Option {
	return func(o *options) {
		if n > 0 && n <= 255 {
			o.maxSlots = n
		}
	}
}

// WithMaxPorts sets the number of root hub ports (1-255).
func WithMaxPorts(n int) Option {
	return func(o *options) {
		if n > 0 && n <= 255 {
			o.maxPorts = n
		}
	}
}
