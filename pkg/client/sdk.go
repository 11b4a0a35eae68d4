package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// SDKCompleter implements Completer with the go-openai client. API errors are
// returned as an error body rather than a Go error, so callers treat them
// like any other invalid response.
type SDKCompleter struct {
	client *openai.Client
}

// NewSDKCompleter creates a completer for the API at baseURL.
func NewSDKCompleter(apiKey, baseURL string, hc *http.Client) (*SDKCompleter, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = JoinURL(baseURL, "v1")
	if hc != nil {
		cfg.HTTPClient = hc
	}

	return &SDKCompleter{client: openai.NewClientWithConfig(cfg)}, nil
}

// Complete implements Completer. Options that have no go-openai request
// field are dropped.
func (s *SDKCompleter) Complete(ctx context.Context, req Request) (json.RawMessage, error) {
	payload, err := json.Marshal(req.Payload())
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var sdkReq openai.ChatCompletionRequest
	if err := json.Unmarshal(payload, &sdkReq); err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.CreateChatCompletion(ctx, sdkReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return json.Marshal(map[string]any{
				"error": map[string]any{
					"message": apiErr.Message,
					"type":    apiErr.Type,
					"param":   apiErr.Param,
					"code":    apiErr.Code,
				},
			})
		}
		return nil, &TransportError{Op: "POST", URL: "chat/completions", Err: err}
	}

	return json.Marshal(resp)
}
