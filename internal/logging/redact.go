package logging

import (
	"regexp"
	"strings"
)

var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"secret",
}

type secretPattern struct {
	re   *regexp.Regexp
	repl string
}

var secretPatterns = []secretPattern{
	{re: regexp.MustCompile(`syt_[a-zA-Z0-9_]{10,}`), repl: RedactedValue}, // Synapse access tokens
	{re: regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{10,}`), repl: RedactedValue},
	{re: regexp.MustCompile(`(?i)(access_token=)[^&\s]+`), repl: "${1}" + RedactedValue},
	{re: regexp.MustCompile(`(?i)("password"\s*:\s*)"[^"]*"`), repl: `${1}"` + RedactedValue + `"`},
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credentials in a string, such as a request URL or an
// error body echoed by the homeserver.
func Redact(s string) string {
	result := s
	for _, p := range secretPatterns {
		result = p.re.ReplaceAllString(result, p.repl)
	}
	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
