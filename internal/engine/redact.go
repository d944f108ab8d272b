package engine

import "regexp"

// redactPattern matches credential-looking fragments: OpenAI-style keys
// and key=value pairs for api_key/password/secret/token.
var redactPattern = regexp.MustCompile(
	`(?i)(sk-[a-zA-Z0-9_-]{8,}|(api[_-]?key|password|secret|token)\s*[=:]\s*\S+)`)

// Redact replaces credential-looking fragments with a placeholder.
// Applied to every piece of text admitted into a context payload so
// memorized secrets never reach a prompt.
func Redact(text string) string {
	return redactPattern.ReplaceAllString(text, "[REDACTED]")
}
