// Package retry provides exponential backoff for transient failures:
// network fetches that re-enter the stream loop and operator-level
// resubscription delays.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config controls the attempt count and delay progression
type Config struct {
	MaxAttempts  int           // total attempts; 1 means run once, no retry
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // delay ceiling
	Multiplier   float64       // growth factor per retry, typically 2.0
	AddJitter    bool          // add up to 25% randomness to each delay
}

// Single runs the operation exactly once. It is the default for fetch
// sources so a failing endpoint surfaces its error immediately.
func Single() Config {
	return Config{MaxAttempts: 1}
}

// DefaultConfig retries transient failures a few times with short delays
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// NonRetryableError marks an error the caller should not retry
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error so Do fails immediately instead of retrying
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err is marked non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Backoff returns the delay before the given retry attempt (1-based),
// without jitter. Deterministic, so schedulers running on virtual time
// can use it to plan resubscription delays.
func Backoff(cfg Config, attempt int) time.Duration {
	cfg = withDefaults(cfg)
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		next := float64(delay) * cfg.Multiplier
		if next >= float64(cfg.MaxDelay) {
			return cfg.MaxDelay
		}
		delay = time.Duration(next)
	}
	if delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

// Do executes fn until it succeeds, the attempts run out, the error is
// non-retryable, or the context is cancelled. Backoff sleeps happen
// between attempts, never after the last one.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = withDefaults(cfg)

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := Backoff(cfg, attempt)
		if cfg.AddJitter && sleep > 0 {
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(sleep/4) + 1))
			randMu.Unlock()
			sleep += jitter
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff before attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	if cfg.MaxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}

func withDefaults(cfg Config) Config {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	return cfg
}
