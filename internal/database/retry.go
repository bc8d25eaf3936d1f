// internal/database/retry.go
package database

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
)

// RetryPolicy bounds how hard a store retries transient failures.
type RetryPolicy struct {
	MaxTries   uint
	MaxElapsed time.Duration
	Initial    time.Duration
}

// DefaultRetryPolicy is used when a store is opened without one.
var DefaultRetryPolicy = RetryPolicy{MaxTries: 5, MaxElapsed: 5 * time.Second, Initial: 50 * time.Millisecond}

// retry runs op until it succeeds, fails permanently, or the policy runs
// out. transient decides which errors are worth another attempt. Exhausted
// retries surface as PERSISTENCE; permanent errors pass through unchanged.
func retry(ctx context.Context, p RetryPolicy, log logrus.FieldLogger, what string, transient func(error) bool, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}

	permanent := false
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !transient(err) {
			permanent = true
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.WithError(err).WithFields(logrus.Fields{"op": what, "retryIn": next}).Warn("Transient database error, retrying")
		}),
	)
	if err == nil || permanent {
		return err
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Wrap(apperrors.CodePersistence, what+" failed", err)
}
