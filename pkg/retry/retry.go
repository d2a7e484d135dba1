// Package retry implements capped exponential backoff for outbound
// completion and embedding calls. Defaults are tuned for interactive
// request handling: a call that has not succeeded within three
// attempts and a few seconds of backoff is better handed to the
// fallback chain than retried further.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	Attempts       int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
	Retryable      []error // empty means every error is retryable
	Logger         *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.JitterFraction <= 0 {
		c.JitterFraction = 0.1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Do runs op until it succeeds, exhausts the attempt budget, or the
// context is done. The delay doubles per attempt up to MaxDelay, with
// jitter so concurrent callers do not back off in lockstep.
func Do(ctx context.Context, cfg Config, op func() error) error {
	cfg = cfg.withDefaults()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				cfg.Logger.Info("Operation recovered after retry",
					zap.Int("attempt", attempt),
				)
			}
			return nil
		}
		if !retryable(err, cfg.Retryable) || attempt == cfg.Attempts {
			return err
		}

		cfg.Logger.Warn("Operation failed, backing off",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("attempts", cfg.Attempts),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(cfg.delay(attempt), cfg.JitterFraction)):
		}
	}
}

func (c Config) delay(attempt int) time.Duration {
	d := c.BaseDelay << uint(attempt-1)
	if d <= 0 || d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

func retryable(err error, allowed []error) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

func jittered(d time.Duration, fraction float64) time.Duration {
	spread := float64(d) * fraction
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
