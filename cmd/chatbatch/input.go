package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/aixgo-dev/chatbatch/pkg/chat"
)

const maxInputLine = 16 << 20

func promptTemplate(system string) chat.PromptTemplate {
	if system == "" {
		return nil
	}
	return chat.SystemPrompt(system)
}

// readConversations parses one conversation per non-blank line: either a
// JSON string prompt, expanded with tmpl, or a JSON array of messages.
func readConversations(r io.Reader, tmpl chat.PromptTemplate) ([]*chat.Log, error) {
	var logs []*chat.Log
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputLine)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		if data[0] == '"' {
			var prompt string
			if err := json.Unmarshal(data, &prompt); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			logs = append(logs, chat.FromPrompt(prompt, tmpl))
			continue
		}

		log, err := chat.ParseJSONLine(string(data))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		logs = append(logs, log)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return logs, nil
}

// readPrompts returns the non-blank lines of r as plain prompts.
func readPrompts(r io.Reader) ([]string, error) {
	var prompts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputLine)
	for scanner.Scan() {
		if p := string(bytes.TrimSpace(scanner.Bytes())); p != "" {
			prompts = append(prompts, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return prompts, nil
}

// openInput opens path, or returns stdin for "-" and "".
func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path) // #nosec G304 - path chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}
