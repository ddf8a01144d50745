package auth

import (
	"context"
	"math"
	"time"

	"github.com/keithlinneman/pageman/internal/cryptoutil"
	"github.com/keithlinneman/pageman/internal/log"
)

const (
	// DefaultPollInterval is how often the watcher re-reads the admin secret.
	DefaultPollInterval = time.Minute

	// maxBackoff caps exponential backoff on consecutive fetch errors.
	maxBackoff = 10 * time.Minute
)

// WatcherMetrics is implemented by the metrics package.
type WatcherMetrics interface {
	IncAdminSecretReload(result string)
}

type WatcherOptions struct {
	Logger       log.Logger
	Source       Source
	Secret       *AdminSecret
	PollInterval time.Duration
	Metrics      WatcherMetrics
}

// Watcher polls a Source and swaps a rotated admin secret into place. A fetch
// or parse failure keeps the current secret.
type Watcher struct {
	src      Source
	secret   *AdminSecret
	logger   log.Logger
	interval time.Duration
	metrics  WatcherMetrics

	consecutiveErrs int
}

func NewWatcher(opts *WatcherOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		src:      opts.Source,
		secret:   opts.Secret,
		logger:   opts.Logger,
		interval: interval,
		metrics:  opts.Metrics,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "admin secret watcher starting",
		"source", w.src.String(),
		"poll_interval", w.interval.String(),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "admin secret watcher stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			result := w.checkOnce(ctx)
			w.observe(result)
			if result == "error" {
				w.consecutiveErrs++
				backoff := w.backoffDuration()
				w.logger.Warn(ctx, "admin secret watcher: backing off",
					"consecutive_errors", w.consecutiveErrs,
					"next_poll_in", backoff.String(),
				)
				ticker.Reset(backoff)
			} else if w.consecutiveErrs > 0 {
				w.logger.Info(ctx, "admin secret watcher: recovered",
					"had_consecutive_errors", w.consecutiveErrs,
				)
				w.consecutiveErrs = 0
				ticker.Reset(w.interval)
			}
		}
	}
}

// checkOnce returns "unchanged", "rotated" or "error".
func (w *Watcher) checkOnce(ctx context.Context) string {
	raw, err := w.src.Fetch(ctx)
	if err != nil {
		w.logger.Error(ctx, err, "admin secret watcher: fetch failed", "source", w.src.String())
		return "error"
	}
	if cryptoutil.SecretEqual(cryptoutil.SHA256Hex([]byte(raw)), w.secret.fingerprint()) {
		return "unchanged"
	}
	if err := w.secret.Set(raw); err != nil {
		w.logger.Error(ctx, err, "admin secret watcher: rejected new value, keeping current secret",
			"source", w.src.String(),
		)
		return "error"
	}
	w.logger.Info(ctx, "admin secret rotated", "source", w.src.String(), "hashed", w.secret.Hashed())
	return "rotated"
}

func (w *Watcher) observe(result string) {
	if w.metrics != nil {
		w.metrics.IncAdminSecretReload(result)
	}
}

// backoffDuration doubles the interval per consecutive error up to maxBackoff.
func (w *Watcher) backoffDuration() time.Duration {
	d := time.Duration(float64(w.interval) * math.Pow(2, float64(w.consecutiveErrs)))
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d
}
