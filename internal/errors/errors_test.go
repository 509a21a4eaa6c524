package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	tests := []struct {
		name      string
		code      string
		category  Category
		retryable bool
	}{
		{"transient io", ErrCodeTransientIO, CategoryRemote, true},
		{"listing failed", ErrCodeListingFailed, CategoryRemote, true},
		{"unsupported content", ErrCodeUnsupportedContent, CategoryContent, false},
		{"corrupt content", ErrCodeCorruptContent, CategoryContent, false},
		{"index write", ErrCodeIndexWrite, CategoryIndex, true},
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, false},
		{"state store", ErrCodeStateStore, CategoryIO, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeTransientIO, nil))
}

func TestScoutError_ErrorChain(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(ErrCodeFetchFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, stderrors.Is(err, New(ErrCodeFetchFailed, "other message", nil)))
	assert.Contains(t, err.Error(), ErrCodeFetchFailed)
}

func TestScoutError_WithDetail(t *testing.T) {
	err := New(ErrCodeCorruptContent, "bad pdf", nil).WithDetail("path", "/a.pdf")
	assert.Equal(t, "/a.pdf", err.Details["path"])
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeIndexWrite, CodeOf(fmt.Errorf("wrapped: %w", New(ErrCodeIndexWrite, "x", nil))))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(New(ErrCodeTransientIO, "x", nil)))
	assert.False(t, IsRetryable(New(ErrCodeUnsupportedContent, "x", nil)))
	assert.True(t, IsRetryable(stderrors.New("plain transient")))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return stderrors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return stderrors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
	assert.Contains(t, err.Error(), "failed after 2 retries")
}

func TestRetry_ContextCancellation(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 10, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, cfg, func() error { return stderrors.New("never succeeds") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", stderrors.New("not yet")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
