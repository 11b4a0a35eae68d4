package batch

import (
	"context"
	"errors"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
	"github.com/aixgo-dev/chatbatch/pkg/client"
)

// Turn sends log once, without retries, and appends the assistant reply.
// API error answers come back as *InvalidResponseError; log is left
// unchanged on any error.
func Turn(ctx context.Context, c client.Completer, model string, options map[string]any, log *chat.Log) (string, error) {
	raw, err := c.Complete(ctx, client.Request{
		Model:    model,
		Messages: log.Messages(),
		Options:  options,
	})
	if err != nil {
		var apiErr *client.APIError
		if !errors.As(err, &apiErr) {
			return "", err
		}
		raw = apiErr.Body
	}

	content, err := assistantContent(raw)
	if err != nil {
		return "", err
	}
	log.Assistant(content)
	return content, nil
}
