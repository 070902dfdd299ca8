// Package gateway wraps ledger calls with bounded retry. Failures are
// classified structurally via the store error kinds: transient kinds
// (conflict, no-quorum, endorsement, unavailable) are retried up to the
// configured attempt budget, everything else propagates on first sight.
// The wait between attempts is the only pause point and is cancellable
// through the caller's context.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

const (
	// DefaultMaxAttempts bounds total invocations, the first one included.
	DefaultMaxAttempts = 5

	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// RetryPolicy selects how the wait between attempts grows.
type RetryPolicy string

const (
	// RetryExponential waits exponentially longer with jitter. Preferred:
	// fixed-interval retry synchronizes competing writers and makes
	// optimistic-concurrency conflicts recur.
	RetryExponential RetryPolicy = "exponential"

	// RetryFixed waits a constant FixedDelay between attempts.
	RetryFixed RetryPolicy = "fixed"
)

// Config tunes the retry behavior. The zero value gets sane defaults.
type Config struct {
	MaxAttempts     int
	Policy          RetryPolicy
	InitialInterval time.Duration
	MaxInterval     time.Duration
	FixedDelay      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Policy == "" {
		c.Policy = RetryExponential
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}
	if c.FixedDelay <= 0 {
		c.FixedDelay = time.Second
	}
	return c
}

// Gateway retries ledger operations per its Config. Safe for concurrent use.
type Gateway struct {
	cfg Config
	log *slog.Logger
}

// New creates a gateway with cfg, filling in defaults for zero fields.
func New(cfg Config, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{cfg: cfg.withDefaults(), log: log}
}

func (g *Gateway) newBackOff() backoff.BackOff {
	if g.cfg.Policy == RetryFixed {
		return backoff.NewConstantBackOff(g.cfg.FixedDelay)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.InitialInterval
	bo.MaxInterval = g.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	return bo
}

// SubmitWithRetry invokes the mutating operation fn, retrying transient
// store failures. Retried submissions are at-least-once: only operations
// that pre-check their target state (existence-checked creates,
// deduplicated revocations) are safe to route through here.
//
// Transient failures that outlive the attempt budget, and non-retryable
// store failures, come back as *interfaces.FatalLedgerError carrying the
// attempt count. Domain errors (not-found, already-exists, policy and
// access errors) propagate unwrapped on the first attempt.
func (g *Gateway) SubmitWithRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	bo := g.newBackOff()
	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var se *interfaces.StoreError
		if !errors.As(err, &se) {
			// Not a store failure; the ledger already said no.
			return err
		}
		if !se.Kind.Transient() {
			return &interfaces.FatalLedgerError{Op: op, Attempts: attempts, Err: err}
		}
		if attempts >= g.cfg.MaxAttempts {
			g.log.Error("retry budget exhausted",
				slog.String("op", op),
				slog.Int("attempts", attempts),
				"err", err)
			return &interfaces.FatalLedgerError{Op: op, Attempts: attempts, Err: err}
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return &interfaces.FatalLedgerError{Op: op, Attempts: attempts, Err: err}
		}
		g.log.Warn("transient ledger failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempts),
			slog.String("kind", se.Kind.String()),
			slog.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return &interfaces.FatalLedgerError{Op: op, Attempts: attempts, Err: ctx.Err()}
		case <-time.After(wait):
		}
	}
}

// EvaluateWithRetry is SubmitWithRetry for read-only calls returning a
// value. Reads carry no at-least-once hazard, so any query may be routed
// through it.
func EvaluateWithRetry[T any](ctx context.Context, g *Gateway, op string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := g.SubmitWithRetry(ctx, op, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
