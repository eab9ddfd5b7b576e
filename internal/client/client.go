// Package client calls the situation analysis endpoint of a running server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/situation-monitor/internal/apperr"
	"github.com/benvon/situation-monitor/internal/composer"
)

// SituationPath is the analysis endpoint relative to the server base URL.
const SituationPath = "/api/v1/situation-meme"

const maxResponseBytes = 1 << 20

// Client is an HTTP implementation of composer.Remote.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// analysis waits on the language model
		http: &http.Client{Timeout: 150 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Success bool              `json:"success"`
	Data    composer.Analysis `json:"data"`
	Error   string            `json:"error"`
	Message string            `json:"message"`
}

// GenerateSituation requests an analysis for handle. Error responses are
// returned as *apperr.Error carrying the server's message.
func (c *Client) GenerateSituation(ctx context.Context, handle string) (*composer.Analysis, error) {
	body, err := json.Marshal(map[string]string{"handle": handle})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+SituationPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("situation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read situation response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, statusError(resp.StatusCode, "", "")
		}
		return nil, fmt.Errorf("failed to decode situation response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return nil, statusError(resp.StatusCode, env.Error, env.Message)
	}
	return &env.Data, nil
}

func statusError(status int, kind, message string) error {
	switch {
	case status == http.StatusBadRequest:
		return apperr.NewBadRequest(message)
	case status == http.StatusNotFound:
		return apperr.NewNotFound(message)
	case apperr.Kind(kind) == apperr.KindAnalysisFailed:
		return apperr.NewAnalysisFailed(nil)
	case kind != "" && message != "" && apperr.Kind(kind) != apperr.KindUnclassified:
		// rate limit, timeout and body size rejections are meant for the user as sent
		return &apperr.Error{Kind: apperr.Kind(kind), Status: status, Message: message}
	default:
		return apperr.NewUnclassified(fmt.Errorf("server returned status %d: %s", status, message))
	}
}

var _ composer.Remote = (*Client)(nil)
