package provider

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
)

// StatusCodeError is implemented by transport errors that carry an HTTP
// status code, letting the retry middleware stay provider-agnostic. The
// OpenAI backend wraps its SDK's error type to satisfy this. The Anthropic
// and Google backends return their SDK errors without such a wrapper, so
// WithRetry does not retry their failures.
type StatusCodeError interface {
	error
	StatusCode() int
}

// Provider is the external collaborator consumed by the orchestrator
// (spec.md §6): given a model id and Context, stream chat-completion deltas;
// list selectable models.
type Provider interface {
	Chat(ctx context.Context, modelID string, c forgetype.Context) (<-chan Delta, error)
	Models(ctx context.Context) ([]Model, error)
}

// RetryConfig holds the exponential-backoff policy of spec.md §4.4:
// initial 200ms, factor 2, up to 3 attempts, default retryable set
// {429,500,502,503,504}. Grounded in the original implementation's explicit
// retry_config.rs (SPEC_FULL.md item 1) rather than the teacher's
// hard-coded constants.
type RetryConfig struct {
	Attempts       int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	RetryableCodes map[int]bool
}

// DefaultRetryConfig returns the policy named in spec.md §4.4.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		RetryableCodes: map[int]bool{
			429: true, 500: true, 502: true, 503: true, 504: true,
		},
	}
}

func (c RetryConfig) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sce StatusCodeError
	if errors.As(err, &sce) {
		return c.RetryableCodes[sce.StatusCode()]
	}
	return false
}

// WithRetry wraps a unary or streaming provider call with the exponential
// backoff policy of spec.md §4.4. Non-retryable errors (or retryable errors
// once the attempt budget is exhausted) are returned as-is; the orchestrator
// turns those into a terminal ChatResponse::error.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, call func() (T, error)) (T, error) {
	var result T
	err := retry.Do(
		func() error {
			r, err := call()
			if err == nil {
				result = r
			}
			return err
		},
		retry.RetryIf(cfg.isRetryable),
		retry.Attempts(uint(cfg.Attempts)),
		retry.Delay(cfg.InitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).WithField("max_attempts", cfg.Attempts).Warn("retrying provider call")
		}),
	)
	return result, err
}
