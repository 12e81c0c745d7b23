// Package client is an HTTP client for the csvgen API.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/csvgen/internal/domain"
	"github.com/timmy/csvgen/internal/pool"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Field      string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("api error (status %d, field %s): %s", e.StatusCode, e.Field, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to a csvgen server.
type Client struct {
	client *resty.Client
}

// New creates a client for baseURL, e.g. http://localhost:5000.
func New(baseURL string, timeout time.Duration) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(200 * time.Millisecond)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= 500
	})
	return &Client{client: client}
}

func (c *Client) check(resp *resty.Response, err error, what string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if resp.IsError() {
		apiErr, ok := resp.Error().(*APIError)
		if !ok || apiErr == nil {
			apiErr = &APIError{Message: resp.Status()}
		}
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Generate submits a job and returns its ID.
func (c *Client) Generate(ctx context.Context, fields []domain.Column, rowCount int) (string, error) {
	var out struct {
		JobID string `json:"jobId"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"fields": fields, "rowCount": rowCount}).
		SetResult(&out).
		SetError(&APIError{}).
		Post("/api/generate-csv")
	if err := c.check(resp, err, "submit job"); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// GetJob fetches the current snapshot of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var out struct {
		Job              domain.Job `json:"job"`
		ProcessingTimeMs int64      `json:"processingTime"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", jobID).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/jobs/{id}")
	if err := c.check(resp, err, "get job"); err != nil {
		return nil, err
	}
	out.Job.ProcessingTime = time.Duration(out.ProcessingTimeMs) * time.Millisecond
	return &out.Job, nil
}

// WaitForJob polls until the job is completed or failed.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*domain.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// WorkerStatus fetches the pool snapshot.
func (c *Client) WorkerStatus(ctx context.Context) (*pool.Snapshot, error) {
	var out pool.Snapshot
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/worker-status")
	if err := c.check(resp, err, "get worker status"); err != nil {
		return nil, err
	}
	return &out, nil
}

// FieldTypes lists the column kinds the server can generate.
func (c *Client) FieldTypes(ctx context.Context) ([]string, error) {
	var out struct {
		FieldTypes []string `json:"fieldTypes"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&APIError{}).
		Get("/api/field-types")
	if err := c.check(resp, err, "get field types"); err != nil {
		return nil, err
	}
	return out.FieldTypes, nil
}
