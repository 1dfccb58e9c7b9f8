package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Invalidator defines a cache invalidation contract keyed by user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// ListPaths are the per-user API responses derived from the measurement list.
var ListPaths = []string{
	"/v1/measurements",
	"/v1/measurements/timeline",
	"/v1/measurements/radar",
	"/v1/measurements/export",
}

// PurgeRequest is the body sent to the edge purge endpoint.
type PurgeRequest struct {
	UserID string   `json:"user_id"`
	Paths  []string `json:"paths"`
}

// HTTPInvalidator asks an edge cache to purge a user's measurement views.
type HTTPInvalidator struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewHTTPInvalidator constructs an HTTPInvalidator posting to endpoint.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
	}
}

// Invalidate purges every path in ListPaths for userID.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, userID string) error {
	body, err := json.Marshal(PurgeRequest{UserID: userID, Paths: ListPaths})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge %s: %w", userID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode >= 300 {
		return &InvalidationError{UserID: userID, Status: resp.StatusCode}
	}
	return nil
}

// InvalidationError reports a purge the edge refused.
type InvalidationError struct {
	UserID string
	Status int
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("purge %s: edge answered %d %s", e.UserID, e.Status, http.StatusText(e.Status))
}

// Chain fans an invalidation out to several invalidators, joining their errors.
type Chain []Invalidator

// Invalidate calls every member even when an earlier one fails.
func (c Chain) Invalidate(ctx context.Context, userID string) error {
	var err error
	for _, inv := range c {
		if inv == nil {
			continue
		}
		err = errors.Join(err, inv.Invalidate(ctx, userID))
	}
	return err
}
