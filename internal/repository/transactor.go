package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Transactor retries a transaction body on ErrTransactionConflict with
// exponential backoff. Any other error ends the attempt immediately.
type Transactor struct {
	runner TxRunner
	policy RetryPolicy
	log    *zap.Logger
}

func NewTransactor(runner TxRunner, policy RetryPolicy, log *zap.Logger) *Transactor {
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy().InitialInterval
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transactor{runner: runner, policy: policy, log: log}
}

func (t *Transactor) WithTransaction(ctx context.Context, fn func(tx Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.policy.InitialInterval
	b.MaxInterval = t.policy.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := t.runner.RunInTransaction(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTransactionConflict) {
			t.log.Warn("transaction conflict",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", t.policy.MaxRetries),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(t.policy.MaxRetries)), ctx)
	return backoff.Retry(operation, policy)
}
