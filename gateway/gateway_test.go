package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipfs/policy-escrow-backend/interfaces"
)

func fastGateway(maxAttempts int) *Gateway {
	return New(Config{
		MaxAttempts: maxAttempts,
		Policy:      RetryFixed,
		FixedDelay:  time.Millisecond,
	}, nil)
}

func transientErr() error {
	return interfaces.NewStoreError(interfaces.KindConflict, "put", "asset/a1", nil)
}

func TestSubmitWithRetry_TransientThenSuccess(t *testing.T) {
	g := fastGateway(5)

	for k := 0; k < 5; k++ {
		calls := 0
		err := g.SubmitWithRetry(context.Background(), "CreateAsset", func(context.Context) error {
			calls++
			if calls <= k {
				return transientErr()
			}
			return nil
		})
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, k+1, calls)
	}
}

func TestSubmitWithRetry_ExhaustedBudget(t *testing.T) {
	const maxAttempts = 5
	g := fastGateway(maxAttempts)

	calls := 0
	err := g.SubmitWithRetry(context.Background(), "UpdateAsset", func(context.Context) error {
		calls++
		return transientErr()
	})

	assert.Equal(t, maxAttempts, calls, "exactly maxAttempts invocations, no more, no fewer")

	var fatal *interfaces.FatalLedgerError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "UpdateAsset", fatal.Op)
	assert.Equal(t, maxAttempts, fatal.Attempts)
	assert.True(t, interfaces.IsTransient(fatal.Err))
}

func TestSubmitWithRetry_DomainErrorNotRetried(t *testing.T) {
	g := fastGateway(5)

	calls := 0
	err := g.SubmitWithRetry(context.Background(), "CreateUser", func(context.Context) error {
		calls++
		return interfaces.ErrAlreadyExists
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, interfaces.ErrAlreadyExists)

	var fatal *interfaces.FatalLedgerError
	assert.False(t, errors.As(err, &fatal), "domain errors pass through unwrapped")
}

func TestSubmitWithRetry_InternalStoreErrorFatalOnFirstAttempt(t *testing.T) {
	g := fastGateway(5)

	calls := 0
	err := g.SubmitWithRetry(context.Background(), "DeleteAsset", func(context.Context) error {
		calls++
		return interfaces.NewStoreError(interfaces.KindInternal, "delete", "asset/a1", errors.New("disk on fire"))
	})

	assert.Equal(t, 1, calls)
	var fatal *interfaces.FatalLedgerError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, fatal.Attempts)
}

func TestSubmitWithRetry_ContextCancelsWait(t *testing.T) {
	g := New(Config{
		MaxAttempts: 5,
		Policy:      RetryFixed,
		FixedDelay:  time.Hour,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := g.SubmitWithRetry(ctx, "CreateAsset", func(context.Context) error {
		return transientErr()
	})
	assert.Less(t, time.Since(start), time.Minute)

	var fatal *interfaces.FatalLedgerError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, fatal.Err, context.Canceled)
}

func TestEvaluateWithRetry(t *testing.T) {
	g := fastGateway(5)

	calls := 0
	got, err := EvaluateWithRetry(context.Background(), g, "ReadAsset", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transientErr()
		}
		return "asset-body", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "asset-body", got)
	assert.Equal(t, 3, calls)

	_, err = EvaluateWithRetry(context.Background(), g, "GetUser", func(context.Context) (string, error) {
		return "leftover", interfaces.ErrNotFound
	})
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, cfg.MaxAttempts)
	assert.Equal(t, RetryExponential, cfg.Policy)
	assert.Positive(t, cfg.InitialInterval)
	assert.Positive(t, cfg.MaxInterval)
}
