// Package client is a thin synchronous wrapper around an OpenAI-compatible
// chat-completion HTTP API. It performs exactly one request per call and
// never retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

const (
	chatCompletionsPath = "v1/chat/completions"
	modelsPath          = "v1/models"
)

// ErrMissingAPIKey is returned when a client is built without credentials.
var ErrMissingAPIKey = errors.New("API key is not provided")

// APIError is returned when the API answers with a non-200 status.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api call failed with status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// TransportError is returned when no HTTP response was received.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Request is one chat-completion call.
type Request struct {
	Model    string
	Messages []chat.Message
	// Options are merged into the request body after model and messages,
	// e.g. {"temperature": 0.2, "max_tokens": 64}.
	Options map[string]any
}

// Payload returns the JSON body for the request.
func (r Request) Payload() map[string]any {
	msgs := r.Messages
	if msgs == nil {
		msgs = []chat.Message{}
	}
	body := map[string]any{
		"model":    r.Model,
		"messages": msgs,
	}
	for k, v := range r.Options {
		body[k] = v
	}
	return body
}

// Completer performs a single chat-completion call and returns the raw
// response body.
type Completer interface {
	Complete(ctx context.Context, req Request) (json.RawMessage, error)
}

// Client calls the chat-completion endpoint over plain HTTP.
type Client struct {
	apiKey     string
	baseURL    string
	chatURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API base URL (scheme and host, optionally a prefix path).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = NormalizeURL(base)
		}
	}
}

// WithChatURL overrides the full chat-completion URL.
func WithChatURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.chatURL = NormalizeURL(u)
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client. The base URL defaults to DefaultBaseURL.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chatURL == "" {
		c.chatURL = JoinURL(c.baseURL, chatCompletionsPath)
	}
	return c, nil
}

// ChatURL returns the chat-completion endpoint.
func (c *Client) ChatURL() string {
	return c.chatURL
}

// ModelsURL returns the models endpoint.
func (c *Client) ModelsURL() string {
	return JoinURL(c.baseURL, modelsPath)
}

// Complete sends one chat-completion request. A non-200 status yields an
// *APIError carrying the body; a failed round trip yields a *TransportError.
func (c *Client) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(req.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)

	return c.do(httpReq, "POST")
}

// ValidModels lists the model ids served by the API, keeping only ids that
// contain "gpt" when gptOnly is set.
func (c *Client) ValidModels(ctx context.Context, gptOnly bool) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ModelsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(httpReq)

	data, err := c.do(httpReq, "GET")
	if err != nil {
		return nil, err
	}

	var list openai.ModelsList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode models: %w", err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if gptOnly && !strings.Contains(m.ID, "gpt") {
			continue
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func (c *Client) do(req *http.Request, op string) (json.RawMessage, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, URL: req.URL.String(), Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: data}
	}
	return data, nil
}
