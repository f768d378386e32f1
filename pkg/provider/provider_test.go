package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct {
	code int
}

func (e *statusErr) Error() string  { return "status error" }
func (e *statusErr) StatusCode() int { return e.code }

func TestWithRetryRetriesRetryableStatus(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 0
	cfg.MaxDelay = 0

	attempts := 0
	result, err := WithRetry(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", &statusErr{code: 503}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryDoesNotRetryNonRetryableStatus(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = 0

	attempts := 0
	_, err := WithRetry(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &statusErr{code: 400}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	cfg := DefaultRetryConfig()
	cfg.Attempts = 2
	cfg.InitialDelay = 0
	cfg.MaxDelay = 0

	attempts := 0
	_, err := WithRetry(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", &statusErr{code: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}
