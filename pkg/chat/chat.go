// Package chat holds the conversation log: an ordered list of role/content
// messages exchanged with a chat-completion API.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Role of a message author.
type Role string

const (
	RoleSystem    Role = openai.ChatMessageRoleSystem
	RoleUser      Role = openai.ChatMessageRoleUser
	RoleAssistant Role = openai.ChatMessageRoleAssistant
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

var (
	// ErrEmptyLog is returned when popping from an empty log.
	ErrEmptyLog = errors.New("chat log is empty")
	// ErrIndexOutOfRange is returned by At for an index outside the log.
	ErrIndexOutOfRange = errors.New("chat log index out of range")
	// ErrInvalidRole is returned when a persisted message carries an unknown role.
	ErrInvalidRole = errors.New("invalid message role")
)

// Message is a single chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptTemplate turns a raw prompt into the initial messages of a conversation.
type PromptTemplate func(prompt string) []Message

// SystemPrompt returns a template that prefixes every prompt with a system message.
func SystemPrompt(system string) PromptTemplate {
	return func(prompt string) []Message {
		return []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: prompt},
		}
	}
}

// Log is an ordered conversation. The zero value is an empty log ready to use.
// A Log is not safe for concurrent mutation.
type Log struct {
	messages []Message
}

// NewLog creates a log holding a copy of msgs.
func NewLog(msgs ...Message) *Log {
	l := &Log{}
	if len(msgs) > 0 {
		l.messages = append(make([]Message, 0, len(msgs)), msgs...)
	}
	return l
}

// FromPrompt builds a log from a raw prompt. A nil template yields a single
// user message.
func FromPrompt(prompt string, tmpl PromptTemplate) *Log {
	if tmpl == nil {
		return NewLog(Message{Role: RoleUser, Content: prompt})
	}
	return NewLog(tmpl(prompt)...)
}

// Append adds a message and returns the log for chaining.
func (l *Log) Append(role Role, content string) *Log {
	l.messages = append(l.messages, Message{Role: role, Content: content})
	return l
}

// User appends a user message.
func (l *Log) User(content string) *Log { return l.Append(RoleUser, content) }

// Assistant appends an assistant message.
func (l *Log) Assistant(content string) *Log { return l.Append(RoleAssistant, content) }

// System appends a system message.
func (l *Log) System(content string) *Log { return l.Append(RoleSystem, content) }

// Pop removes and returns the last message.
func (l *Log) Pop() (Message, error) {
	if len(l.messages) == 0 {
		return Message{}, ErrEmptyLog
	}
	last := l.messages[len(l.messages)-1]
	l.messages = l.messages[:len(l.messages)-1]
	return last, nil
}

// Copy returns an independent copy of the log.
func (l *Log) Copy() *Log {
	return NewLog(l.messages...)
}

// Clear drops every message.
func (l *Log) Clear() {
	l.messages = nil
}

// Len returns the number of messages.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.messages)
}

// At returns the message at index i. Negative indices count from the end,
// so At(-1) is the last message.
func (l *Log) At(i int) (Message, error) {
	n := l.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return Message{}, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, n)
	}
	return l.messages[i], nil
}

// Last returns the last message and whether the log was non-empty.
func (l *Log) Last() (Message, bool) {
	if l.Len() == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Messages returns a copy of the messages.
func (l *Log) Messages() []Message {
	if l.Len() == 0 {
		return []Message{}
	}
	return append(make([]Message, 0, len(l.messages)), l.messages...)
}

// Equal reports whether both logs hold the same messages in the same order.
func (l *Log) Equal(other *Log) bool {
	if l == nil || other == nil {
		return l == other
	}
	if len(l.messages) != len(other.messages) {
		return false
	}
	for i := range l.messages {
		if l.messages[i] != other.messages[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the log as a bare array of messages.
func (l *Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Messages())
}

// UnmarshalJSON decodes a bare array of messages.
func (l *Log) UnmarshalJSON(data []byte) error {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return err
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: %w: %q", i, ErrInvalidRole, m.Role)
		}
	}
	l.messages = msgs
	return nil
}

// MarshalJSONLine encodes the log as a single JSON line without a trailing newline.
func (l *Log) MarshalJSONLine() (string, error) {
	data, err := l.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseJSONLine decodes a log previously written by MarshalJSONLine.
func ParseJSONLine(line string) (*Log, error) {
	l := &Log{}
	if err := l.UnmarshalJSON([]byte(strings.TrimSpace(line))); err != nil {
		return nil, fmt.Errorf("parse chat log: %w", err)
	}
	return l, nil
}

// Format renders the transcript, one "role: content" entry per message,
// joined by sep.
func (l *Log) Format(sep string) string {
	parts := make([]string, 0, l.Len())
	for _, m := range l.Messages() {
		parts = append(parts, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(parts, sep)
}

func (l *Log) String() string {
	return fmt.Sprintf("<Chat with %d messages>", l.Len())
}

// OpenAIMessages converts the log into go-openai request messages.
func (l *Log) OpenAIMessages() []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, l.Len())
	for _, m := range l.Messages() {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
