package llm

import (
	"context"
	"time"

	"github.com/zhuguadundan/videowhisper/internal/retry"
)

// RetryConfig bounds the retry wrapper applied to every sub-operation call.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c RetryConfig) orDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 8 * time.Second
	}
	return c
}

// retryingProvider wraps a Provider so each sub-operation is retried on any
// error, up to cfg.MaxAttempts; errors are not classified, so a terminal
// failure is retried like a transient one. Once attempts run out, the last
// error propagates to the caller.
type retryingProvider struct {
	inner Provider
	cfg   RetryConfig
}

// WithRetry decorates p with retry.Do around each sub-operation call.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &retryingProvider{inner: p, cfg: cfg.orDefaults()}
}

func (r *retryingProvider) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     r.cfg.MaxAttempts,
		InitialInterval: r.cfg.InitialInterval,
		MaxInterval:     r.cfg.MaxInterval,
		Multiplier:      2,
	}
}

func (r *retryingProvider) Polish(ctx context.Context, transcript string) (string, error) {
	var out string
	err := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		o, err := r.inner.Polish(ctx, transcript)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (r *retryingProvider) Summarize(ctx context.Context, transcript string) (SummaryResult, error) {
	var out SummaryResult
	err := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		o, err := r.inner.Summarize(ctx, transcript)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (r *retryingProvider) Analyze(ctx context.Context, transcript string) (AnalysisResult, error) {
	var out AnalysisResult
	err := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		o, err := r.inner.Analyze(ctx, transcript)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (r *retryingProvider) Translate(ctx context.Context, transcript, targetLanguage string) (string, error) {
	var out string
	err := retry.Do(ctx, r.policy(), func(ctx context.Context) error {
		o, err := r.inner.Translate(ctx, transcript, targetLanguage)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}
