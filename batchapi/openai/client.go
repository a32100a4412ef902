// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package openai implements batchapi.Service over the OpenAI Files and
// Batches APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/poiesic/embatch/batchapi"
	"github.com/poiesic/embatch/core"
)

const (
	// completionWindow is the turnaround the service is asked for. Jobs not
	// finished within it move to the expired state.
	completionWindow = "24h"

	defaultCallDelay   = 500 * time.Millisecond
	defaultMaxAttempts = 5
	defaultRetryDelay  = 2 * time.Second
)

// Config holds client configuration.
type Config struct {
	// APIKey authenticates against the service. Required.
	APIKey string

	// BaseURL overrides the service endpoint; empty means the default.
	BaseURL string

	// CallDelay is the fixed pause inserted between successive API calls to
	// respect the service's rate limits.
	CallDelay time.Duration

	// MaxAttempts bounds retries of a single call on transient failures.
	MaxAttempts int

	// RetryDelay is the base delay for backoff between retries.
	RetryDelay time.Duration
}

// Client talks to the external batch service.
type Client struct {
	api      *openai.Client
	cfg      Config
	lastCall time.Time
	logger   *slog.Logger
}

var _ batchapi.Service = (*Client)(nil)

// NewClient creates a batch service client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("batch service API key is required")
	}
	if cfg.CallDelay <= 0 {
		cfg.CallDelay = defaultCallDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:    openai.NewClientWithConfig(apiConfig),
		cfg:    cfg,
		logger: slog.Default().With("component", "batch-service"),
	}, nil
}

// SubmitJob uploads the request file and registers a batch against it.
func (c *Client) SubmitJob(ctx context.Context, name string, payload []byte) (string, error) {
	var file openai.File
	err := c.call(ctx, "upload request file", func() error {
		var err error
		file, err = c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
			Name:    name,
			Bytes:   payload,
			Purpose: openai.PurposeBatch,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}

	var batch openai.BatchResponse
	err = c.call(ctx, "register batch job", func() error {
		var err error
		batch, err = c.api.CreateBatch(ctx, openai.CreateBatchRequest{
			InputFileID:      file.ID,
			Endpoint:         openai.BatchEndpointEmbeddings,
			CompletionWindow: completionWindow,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to register job for %s: %w", name, err)
	}

	c.logger.Info("batch job registered",
		"name", name, "jobID", batch.ID, "inputFileID", file.ID)
	return batch.ID, nil
}

// JobState polls a job by id and maps its status onto the ledger state
// machine.
func (c *Client) JobState(ctx context.Context, jobID string) (batchapi.JobState, error) {
	var batch openai.BatchResponse
	err := c.call(ctx, "poll batch job", func() error {
		var err error
		batch, err = c.api.RetrieveBatch(ctx, jobID)
		return err
	})
	if err != nil {
		return batchapi.JobState{}, fmt.Errorf("failed to poll job %s: %w", jobID, err)
	}

	state := batchapi.JobState{
		ID:        batch.ID,
		Status:    mapStatus(batch.Status),
		RawStatus: batch.Status,
	}
	if batch.OutputFileID != nil {
		state.OutputReference = *batch.OutputFileID
	}
	return state, nil
}

// FetchOutput streams a completed job's output payload.
func (c *Client) FetchOutput(ctx context.Context, outputReference string) (io.ReadCloser, error) {
	var content openai.RawResponse
	err := c.call(ctx, "download output", func() error {
		var err error
		content, err = c.api.GetFileContent(ctx, outputReference)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download output %s: %w", outputReference, err)
	}
	return content, nil
}

// mapStatus translates the service's native status strings onto the ledger
// state machine. Unknown strings are treated as still in progress so a new
// service-side state never wedges the tracker.
func mapStatus(raw string) core.JobStatus {
	switch raw {
	case "validating":
		return core.StatusSubmitted
	case "in_progress", "finalizing", "cancelling":
		return core.StatusInProgress
	case "completed":
		return core.StatusCompleted
	case "failed":
		return core.StatusFailed
	case "cancelled":
		return core.StatusCancelled
	case "expired":
		return core.StatusExpired
	default:
		return core.StatusInProgress
	}
}

// call paces, invokes, and retries one API call. Rate limiting, server
// errors, and transport-level failures (refused connections, timeouts, DNS)
// back off exponentially up to MaxAttempts; an auth rejection is retried
// exactly once since a transient denial clears on the next request.
func (c *Client) call(ctx context.Context, desc string, fn func() error) error {
	var lastErr error
	authRetried := false

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.pace(ctx); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		code := statusCode(lastErr)
		switch {
		// A zero code means the request never produced an HTTP response;
		// the failure is in the transport and worth retrying.
		case code == 0 || code == 429 || code >= 500:
			delay := c.cfg.RetryDelay << (attempt - 1)
			c.logger.Warn("transient failure, backing off",
				"call", desc, "attempt", attempt, "status", code, "delay", delay, "err", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return err
			}
		case (code == 401 || code == 403) && !authRetried:
			authRetried = true
			c.logger.Warn("auth rejected, retrying once", "call", desc, "err", lastErr)
		default:
			return lastErr
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// pace enforces the fixed inter-call delay.
func (c *Client) pace(ctx context.Context) error {
	if !c.lastCall.IsZero() {
		if wait := c.cfg.CallDelay - time.Since(c.lastCall); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.lastCall = time.Now()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// statusCode extracts the HTTP status from a service error, or 0.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
