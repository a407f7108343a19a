package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	polishAttempts int
	polishFailsN   int
	polishErr      error
}

func (f *fakeProvider) Polish(_ context.Context, transcript string) (string, error) {
	f.polishAttempts++
	if f.polishAttempts <= f.polishFailsN {
		return "", f.polishErr
	}
	return "polished: " + transcript, nil
}

func (f *fakeProvider) Summarize(_ context.Context, _ string) (SummaryResult, error) {
	return SummaryResult{}, errors.New("not implemented")
}

func (f *fakeProvider) Analyze(_ context.Context, _ string) (AnalysisResult, error) {
	return AnalysisResult{}, errors.New("not implemented")
}

func (f *fakeProvider) Translate(_ context.Context, _, _ string) (string, error) {
	return "", errors.New("not implemented")
}

func TestWithRetry_RetriesTransientFailure(t *testing.T) {
	inner := &fakeProvider{polishFailsN: 2, polishErr: errors.New("network blip")}
	p := WithRetry(inner, RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	out, err := p.Polish(context.Background(), "raw")
	require.NoError(t, err)
	require.Equal(t, "polished: raw", out)
	require.Equal(t, 3, inner.polishAttempts)
}

func TestWithRetry_ExhaustsAndReturnsError(t *testing.T) {
	inner := &fakeProvider{polishFailsN: 99, polishErr: errors.New("always fails")}
	p := WithRetry(inner, RetryConfig{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, err := p.Polish(context.Background(), "raw")
	require.Error(t, err)
	require.Equal(t, 2, inner.polishAttempts)
}
