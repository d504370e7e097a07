// Package httpjson is the JSON-over-HTTP transport shared by the oracle and collaborator
// clients. Calls go through the resilience executor and failures are mapped to domain
// error kinds.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/action-orchestrator/internal/infrastructure/resilience"
)

type Client struct {
	name       string
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHeader(key, value string) Option {
	return func(c *Client) {
		if strings.TrimSpace(value) != "" {
			c.headers[key] = value
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

// New builds a client for one collaborator. name selects the retry policy and prefixes
// operation names in logs, breaker keys and error messages.
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    make(map[string]string),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return c.name
}

// Request describes one POST. Headers are added on top of the client defaults.
type Request struct {
	Operation string
	Path      string
	Body      any
	Headers   map[string]string
}

// Post sends the request through the executor and decodes the JSON reply into out.
// The retry budget is the one configured for the client's collaborator name.
func (c *Client) Post(ctx context.Context, req Request, out any) error {
	operation := c.name + "." + req.Operation
	err := c.execute(ctx, resilience.Operation{Collaborator: c.name, Name: req.Operation}, func(callCtx context.Context) error {
		return c.postJSON(callCtx, req, out, operation)
	})
	return WrapTemporaryIfNeeded(operation, err)
}

func (c *Client) execute(ctx context.Context, op resilience.Operation, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, op, fn, Classify)
}

func (c *Client) postJSON(ctx context.Context, r Request, out any, operation string) error {
	body, err := json.Marshal(r.Body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+r.Path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func newHTTPStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
