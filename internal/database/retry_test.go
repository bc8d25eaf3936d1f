// internal/database/retry_test.go
package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/jason-s-yu/dicehall/internal/errors"
)

var fastRetry = RetryPolicy{MaxTries: 3, MaxElapsed: time.Second, Initial: time.Millisecond}

var errFlaky = errors.New("flaky")

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	log, hook := test.NewNullLogger()
	calls := 0
	err := retry(context.Background(), fastRetry, log, "op", isFlaky, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, hook.AllEntries(), 2, "each retry is logged")
}

func TestRetryExhaustedIsPersistence(t *testing.T) {
	log, _ := test.NewNullLogger()
	calls := 0
	err := retry(context.Background(), fastRetry, log, "op", isFlaky, func() error {
		calls++
		return errFlaky
	})
	assert.Equal(t, apperrors.CodePersistence, apperrors.GetCode(err))
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestRetryPermanentPassesThrough(t *testing.T) {
	log, _ := test.NewNullLogger()
	calls := 0
	want := sessionNotFound("s1")
	err := retry(context.Background(), fastRetry, log, "op", isFlaky, func() error {
		calls++
		return want
	})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))
	assert.Equal(t, 1, calls)
}
