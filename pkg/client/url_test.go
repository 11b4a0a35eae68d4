package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "http://api.example.com", want: "http://api.example.com"},
		{in: "https://api.example.com/v1/chat/completions", want: "https://api.example.com/v1/chat/completions"},
		{in: "api.example.com", want: "https://api.example.com"},
		{in: "api.example.com/v1/models", want: "https://api.example.com/v1/models"},
		{in: "localhost:8080", want: "https://localhost:8080"},
		{in: "https:///api.example.com", want: "https://api.example.com"},
		{in: "//api.example.com", want: "https://api.example.com"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", JoinURL("https://api.openai.com", "v1/chat/completions"))
	assert.Equal(t, "https://api.openai.com/v1/models", JoinURL("https://api.openai.com/", "/v1/models"))
	assert.Equal(t, "https://proxy.local/openai/v1/models", JoinURL("proxy.local/openai", "v1/models"))
	assert.Equal(t, "https://proxy.local", JoinURL("proxy.local", ""))
}

func TestResolveBaseURL(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "default", env: map[string]string{}, want: DefaultBaseURL},
		{name: "primary", env: map[string]string{"OPENAI_BASE_URL": "https://primary.example"}, want: "https://primary.example"},
		{name: "secondary", env: map[string]string{"OPENAI_API_BASE_URL": "secondary.example"}, want: "https://secondary.example"},
		{
			name: "primary_wins",
			env: map[string]string{
				"OPENAI_BASE_URL":     "https://primary.example",
				"OPENAI_API_BASE_URL": "https://secondary.example",
			},
			want: "https://primary.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveBaseURL(func(k string) string { return tt.env[k] })
			assert.Equal(t, tt.want, got)
		})
	}
}
