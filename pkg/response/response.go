// Package response wraps a raw chat-completion response body and tells a
// successful payload apart from an API error payload.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

var (
	// ErrMalformedResponse is returned when a body is not a JSON object or
	// lacks the fields an accessor needs.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidAccess is returned when a success accessor is used on an error
	// envelope, or an error accessor on a success envelope.
	ErrInvalidAccess = errors.New("invalid response access")
)

type apiError struct {
	Message json.RawMessage `json:"message"`
	Type    string          `json:"type"`
	Param   *string         `json:"param"`
	Code    json.RawMessage `json:"code"`
}

// Envelope is a parsed API response. Success fields are kept raw and decoded
// by their accessors, so a proxy that types one field oddly does not hide the
// rest of the body.
type Envelope struct {
	raw     json.RawMessage
	valid   bool
	fields  map[string]json.RawMessage
	failure apiError
}

// Parse decodes a raw response body. It fails only when the body is not a
// JSON object; validity is decided solely by the presence of a top-level
// "error" key.
func Parse(raw []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("body is null")
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	env := &Envelope{raw: append(json.RawMessage(nil), raw...), fields: fields}

	errField, hasError := fields["error"]
	if !hasError {
		env.valid = true
		return env, nil
	}

	// Providers disagree on the error shape; a non-object error keeps its
	// raw text as the message.
	if err := json.Unmarshal(errField, &env.failure); err != nil {
		env.failure = apiError{Message: errField}
	}
	return env, nil
}

// IsValid reports whether the response carries no error.
func (e *Envelope) IsValid() bool {
	return e.valid
}

// Raw returns the original body.
func (e *Envelope) Raw() json.RawMessage {
	return e.raw
}

func (e *Envelope) requireSuccess(field string) error {
	if !e.valid {
		return fmt.Errorf("%w: %s on error response", ErrInvalidAccess, field)
	}
	return nil
}

func (e *Envelope) requireFailure(field string) error {
	if e.valid {
		return fmt.Errorf("%w: %s on valid response", ErrInvalidAccess, field)
	}
	return nil
}

// Content returns the text of the first choice. A null content is empty.
func (e *Envelope) Content() (string, error) {
	if err := e.requireSuccess("content"); err != nil {
		return "", err
	}

	var choices []struct {
		Message *struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(e.fields["choices"], &choices); err != nil {
		return "", fmt.Errorf("%w: choices: %v", ErrMalformedResponse, err)
	}
	if len(choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
	}
	if choices[0].Message == nil {
		return "", fmt.Errorf("%w: first choice has no message", ErrMalformedResponse)
	}

	content := choices[0].Message.Content
	if isNull(content) {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(content, &text); err != nil {
		return "", fmt.Errorf("%w: content: %v", ErrMalformedResponse, err)
	}
	return text, nil
}

// Message returns the first choice as an assistant message.
func (e *Envelope) Message() (chat.Message, error) {
	content, err := e.Content()
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{Role: chat.RoleAssistant, Content: content}, nil
}

// ID returns the completion id. Numeric ids are formatted as text.
func (e *Envelope) ID() (string, error) {
	if err := e.requireSuccess("id"); err != nil {
		return "", err
	}
	return rawText(e.fields["id"]), nil
}

// Model returns the model that produced the completion.
func (e *Envelope) Model() (string, error) {
	if err := e.requireSuccess("model"); err != nil {
		return "", err
	}
	return rawText(e.fields["model"]), nil
}

// Created returns the creation time as a unix timestamp.
func (e *Envelope) Created() (int64, error) {
	if err := e.requireSuccess("created"); err != nil {
		return 0, err
	}
	return number("created", e.fields["created"])
}

// PromptTokens returns the number of prompt tokens.
func (e *Envelope) PromptTokens() (int, error) {
	return e.usage("prompt_tokens")
}

// CompletionTokens returns the number of generated tokens.
func (e *Envelope) CompletionTokens() (int, error) {
	return e.usage("completion_tokens")
}

// TotalTokens returns prompt plus completion tokens.
func (e *Envelope) TotalTokens() (int, error) {
	return e.usage("total_tokens")
}

func (e *Envelope) usage(name string) (int, error) {
	if err := e.requireSuccess(name); err != nil {
		return 0, err
	}

	var usage map[string]json.RawMessage
	if raw, ok := e.fields["usage"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &usage); err != nil {
			return 0, fmt.Errorf("%w: usage: %v", ErrMalformedResponse, err)
		}
	}
	n, err := number(name, usage[name])
	return int(n), err
}

// number decodes an integer that may have been sent as a float or a quoted
// number. Missing and null values are zero.
func number(name string, raw json.RawMessage) (int64, error) {
	if isNull(raw) {
		return 0, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, name, err)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, name, err)
	}
	return int64(f), nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// ErrorMessage returns the error message.
func (e *Envelope) ErrorMessage() (string, error) {
	if err := e.requireFailure("error_message"); err != nil {
		return "", err
	}
	return rawText(e.failure.Message), nil
}

// ErrorType returns the error type, e.g. "invalid_request_error".
func (e *Envelope) ErrorType() (string, error) {
	if err := e.requireFailure("error_type"); err != nil {
		return "", err
	}
	return e.failure.Type, nil
}

// ErrorParam returns the offending request parameter, if any.
func (e *Envelope) ErrorParam() (string, error) {
	if err := e.requireFailure("error_param"); err != nil {
		return "", err
	}
	if e.failure.Param == nil {
		return "", nil
	}
	return *e.failure.Param, nil
}

// ErrorCode returns the error code. Numeric codes are formatted in decimal.
func (e *Envelope) ErrorCode() (string, error) {
	if err := e.requireFailure("error_code"); err != nil {
		return "", err
	}
	return rawText(e.failure.Code), nil
}

// rawText renders a JSON scalar as plain text: strings are unquoted, null
// and missing values are empty, anything else is kept verbatim.
func rawText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
