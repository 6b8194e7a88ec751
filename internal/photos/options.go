package photos

import (
	"log/slog"
	"time"

	appconfig "photostore/internal/config"
	"photostore/internal/logging"
)

const (
	DefaultLeaseDuration  = 15 * time.Second
	DefaultReleaseTimeout = 5 * time.Second
)

// Observer receives one call per finished operation. The metrics package
// provides the Prometheus implementation.
type Observer interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
	ObserveLeaseReleaseFailure()
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}
func (nopObserver) ObserveLeaseReleaseFailure()                    {}

type options struct {
	logger         *slog.Logger
	observer       Observer
	leaseDuration  time.Duration
	releaseLease   bool
	releaseTimeout time.Duration
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = logging.OrDiscard(l) }
}

func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLeaseDuration sets how long lease-guarded writes hold their lease.
// The store accepts 15s to 60s.
func WithLeaseDuration(d time.Duration) Option {
	return func(o *options) { o.leaseDuration = d }
}

// WithLeaseRelease controls whether a lease is released once the write
// finishes. When off, the lease is left to expire.
func WithLeaseRelease(release bool) Option {
	return func(o *options) { o.releaseLease = release }
}

func WithReleaseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.releaseTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:         logging.Discard(),
		observer:       nopObserver{},
		leaseDuration:  DefaultLeaseDuration,
		releaseLease:   true,
		releaseTimeout: DefaultReleaseTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ConfigOptions translates the [lease] section of cfg.
func ConfigOptions(cfg *appconfig.Config) []Option {
	return []Option{
		WithLeaseDuration(cfg.Lease.Duration.Duration),
		WithLeaseRelease(cfg.ReleaseLease()),
	}
}
