package ai

import (
	"strings"

	logpkg "github.com/benvon/situation-monitor/internal/logger"
)

// previewLength bounds prompt and response excerpts outside debug mode.
const previewLength = 200

const redacted = "[REDACTED]"

// KeyFingerprint identifies an API key in logs by its last four characters.
func KeyFingerprint(apiKey string) string {
	if len(apiKey) <= 8 {
		return redacted
	}
	return redacted + apiKey[len(apiKey)-4:]
}

// redactKey removes apiKey from s. Upstream error bodies can echo request
// details back, so provider errors pass through here before being logged.
func redactKey(s, apiKey string) string {
	if apiKey == "" {
		return s
	}
	return strings.ReplaceAll(s, apiKey, redacted)
}

// excerpt bounds a prompt or model response for logging. Posts are user
// content, so even full excerpts are stripped of control characters.
func excerpt(s string, full bool) string {
	if full {
		return logpkg.SanitizeDebugContent(s)
	}
	return logpkg.SanitizeString(s, previewLength)
}
