// Package sdk is the HTTP client for the measurement API. It backs the
// command-line app: Client satisfies domain.Store so the same façade runs on
// both sides of the wire.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/identity"
)

// ErrUnauthorized is returned for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response carrying the server's error body.
type APIError struct {
	Status int
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Type, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// Unwrap maps 401 to ErrUnauthorized.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// Client talks to one server with an optional bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// New constructs a Client.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SignUp creates an account.
func (c *Client) SignUp(ctx context.Context, creds identity.Credentials) (*identity.Session, error) {
	var session identity.Session
	if _, err := c.do(ctx, http.MethodPost, "/v1/auth/signup", creds, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignIn opens a session.
func (c *Client) SignIn(ctx context.Context, creds identity.Credentials) (*identity.Session, error) {
	var session identity.Session
	if _, err := c.do(ctx, http.MethodPost, "/v1/auth/signin", creds, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SignOut revokes the current token.
func (c *Client) SignOut(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/v1/auth/signout", nil, nil, nil)
	return err
}

// Me resolves the user behind the current token.
func (c *Client) Me(ctx context.Context) (*identity.User, error) {
	var user identity.User
	if _, err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// List implements domain.Store. The server derives the user from the token.
func (c *Client) List(ctx context.Context, _ string) ([]domain.Measurement, error) {
	var resp struct {
		Items []domain.Measurement `json:"items"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/v1/measurements", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Create implements domain.Store.
func (c *Client) Create(ctx context.Context, _ string, input domain.NewMeasurement, idempotencyKey string) (domain.Measurement, bool, error) {
	body := struct {
		Date string `json:"date"`
		domain.Values
	}{Date: input.Date.UTC().Format(time.RFC3339), Values: input.Values}

	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var resp struct {
		Measurement domain.Measurement `json:"measurement"`
	}
	status, err := c.do(ctx, http.MethodPost, "/v1/measurements", body, headers, &resp)
	if err != nil {
		return domain.Measurement{}, false, err
	}
	return resp.Measurement, status == http.StatusOK, nil
}

// Delete implements domain.Store.
func (c *Client) Delete(ctx context.Context, _ string, measurementID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/v1/measurements/"+url.PathEscape(measurementID), nil, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, headers map[string]string, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		apiErr.Status = resp.StatusCode
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
