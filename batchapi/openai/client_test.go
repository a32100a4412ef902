package openai

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/poiesic/embatch/core"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastClient returns a client with delays short enough for retry tests.
func fastClient(t *testing.T, maxAttempts int) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:      "sk-test",
		CallDelay:   time.Millisecond,
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func dialError() error {
	return &url.Error{
		Op:  "Get",
		URL: "http://127.0.0.1:1/batches/batch_x",
		Err: errors.New("dial tcp 127.0.0.1:1: connect: connection refused"),
	}
}

func TestCall_RetriesRefusedConnection(t *testing.T) {
	client := fastClient(t, 5)

	attempts := 0
	err := client.call(context.Background(), "poll batch job", func() error {
		attempts++
		if attempts < 3 {
			return dialError()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCall_GivesUpAfterMaxAttempts(t *testing.T) {
	client := fastClient(t, 3)

	attempts := 0
	err := client.call(context.Background(), "poll batch job", func() error {
		attempts++
		return dialError()
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCall_RetriesRateLimitWithBackoff(t *testing.T) {
	client := fastClient(t, 5)

	attempts := 0
	err := client.call(context.Background(), "upload request file", func() error {
		attempts++
		if attempts < 3 {
			return &openai.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestCall_AuthRejectionRetriedExactlyOnce(t *testing.T) {
	client := fastClient(t, 5)

	attempts := 0
	err := client.call(context.Background(), "poll batch job", func() error {
		attempts++
		return &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestCall_ClientErrorNotRetried(t *testing.T) {
	client := fastClient(t, 5)

	attempts := 0
	err := client.call(context.Background(), "register batch job", func() error {
		attempts++
		return &openai.APIError{HTTPStatusCode: 400, Message: "invalid request"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCall_ContextCancellationNotRetried(t *testing.T) {
	client := fastClient(t, 5)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := client.call(ctx, "poll batch job", func() error {
		attempts++
		cancel()
		return &url.Error{Op: "Get", URL: "http://example.com", Err: context.Canceled}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestMapStatus(t *testing.T) {
	cases := map[string]core.JobStatus{
		"validating":  core.StatusSubmitted,
		"in_progress": core.StatusInProgress,
		"finalizing":  core.StatusInProgress,
		"cancelling":  core.StatusInProgress,
		"completed":   core.StatusCompleted,
		"failed":      core.StatusFailed,
		"cancelled":   core.StatusCancelled,
		"expired":     core.StatusExpired,
	}
	for raw, want := range cases {
		assert.Equal(t, want, mapStatus(raw), "status %q", raw)
	}

	// A state this client has never heard of must not wedge the tracker.
	assert.Equal(t, core.StatusInProgress, mapStatus("some_future_state"))
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	client, err := NewClient(Config{APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, defaultCallDelay, client.cfg.CallDelay)
	assert.Equal(t, defaultMaxAttempts, client.cfg.MaxAttempts)
	assert.Equal(t, defaultRetryDelay, client.cfg.RetryDelay)
}
