package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// SchemaRegistryClient registers JSON schemas with a Confluent-compatible
// Schema Registry and remembers the ids it was given.
type SchemaRegistryClient struct {
	baseURL    string
	httpClient *http.Client
	mu         sync.Mutex
	ids        map[string]int
}

// NewSchemaRegistryClient constructs a client with a bounded request timeout.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ids:        make(map[string]int),
	}
}

// EnsureSchema registers schema under subject and returns its id. Registering
// an identical schema again is a no-op on the registry side and yields the
// same id, so a POST doubles as a lookup.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	cacheKey := subject + "\x00" + schema

	c.mu.Lock()
	id, ok := c.ids[cacheKey]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.register(ctx, subject, schema)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.ids[cacheKey] = id
	c.mu.Unlock()
	return id, nil
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"schemaType": "JSON",
		"schema":     schema,
	})
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/subjects/%s/versions", c.baseURL, url.PathEscape(subject))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("schema registry register %s: status %d: %s", subject, resp.StatusCode, data)
	}

	var payload struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}
	return payload.ID, nil
}
