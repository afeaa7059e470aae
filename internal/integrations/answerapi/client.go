// Package answerapi is the orchestrator-side client for the gateway's
// internal publish-chunk operation. It authenticates with the shared
// publisher secret, which end-user tokens can never present, so the publish
// path stays a separate operation class from the user-facing surface.
package answerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"tenant-assistant/internal/domain"
)

const publishPath = "/internal/v1/chunks"

// Getter is the parameter store dependency used to fetch the publisher
// secret. Implemented by paramstore.Client.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx responses from the gateway.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("answerapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client publishes answer chunks to the ingress gateway.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	secretOnce sync.Once
	secret     string
	secretErr  error
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the given gateway base URL. The publisher
// secret is fetched from the parameter store on first publish and reused for
// the lifetime of the process.
func NewClient(ps Getter, paramPrefix, baseURL string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("answerapi: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("answerapi: parameter prefix must not be empty")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("answerapi: base url must not be empty")
	}
	c := &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PublishChunk posts one chunk to the gateway. Chunks for one answer id must
// be published one at a time, in generation order; the orchestrator's single
// writer per answer id guarantees that.
func (c *Client) PublishChunk(ctx context.Context, chunk domain.AnswerChunk) error {
	secret, err := c.publisherSecret(ctx)
	if err != nil {
		return fmt.Errorf("answerapi: load publisher secret: %w", err)
	}

	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("answerapi: marshal chunk: %w", err)
	}

	url := c.baseURL + publishPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("answerapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("answerapi: publish chunk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPStatusError{StatusCode: resp.StatusCode, URL: url, Body: strings.TrimSpace(string(body))}
	}
	return nil
}

func (c *Client) publisherSecret(ctx context.Context) (string, error) {
	c.secretOnce.Do(func() {
		c.secret, c.secretErr = c.getter.GetParameter(ctx, c.paramPrefix+"/publisher_secret")
	})
	return c.secret, c.secretErr
}
