package client

import (
	"regexp"
	"strings"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "https://api.openai.com"

// Environment variables consulted for the base URL, in precedence order.
// The second one is the name used by chatgpt-web deployments.
var baseURLEnv = []string{"OPENAI_BASE_URL", "OPENAI_API_BASE_URL"}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://`)

// NormalizeURL prefixes scheme-less URLs with https:// and collapses the
// triple slash left behind by joining an empty authority.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return u
	}
	if !schemeRe.MatchString(u) {
		u = "https://" + strings.TrimLeft(u, "/")
	}
	return strings.ReplaceAll(u, "///", "//")
}

// JoinURL appends path to base with exactly one separating slash and
// normalizes the result.
func JoinURL(base, path string) string {
	if path == "" {
		return NormalizeURL(base)
	}
	return NormalizeURL(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"))
}

// ResolveBaseURL picks the base URL from the environment through getenv,
// falling back to DefaultBaseURL. The result is normalized.
func ResolveBaseURL(getenv func(string) string) string {
	for _, key := range baseURLEnv {
		if v := getenv(key); v != "" {
			return NormalizeURL(v)
		}
	}
	return DefaultBaseURL
}
