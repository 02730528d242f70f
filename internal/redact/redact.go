// Package redact scrubs secret-shaped substrings from text before it is
// persisted. Pattern matching is best-effort: shapes outside the rule list
// pass through untouched.
package redact

import "regexp"

// rule pairs a compiled pattern with the label that replaces its matches.
type rule struct {
	re    *regexp.Regexp
	label string
}

// rules are applied in order over the whole input. Replacement is
// irreversible; labels never re-match, so redaction is idempotent.
var rules = []rule{
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "AWS_KEY_REDACTED"},
	{regexp.MustCompile(`(?s)-----BEGIN[^-]+PRIVATE KEY-----.*?-----END[^-]+PRIVATE KEY-----`), "PRIVATE_KEY_REDACTED"},
	{regexp.MustCompile(`Bearer [A-Za-z0-9\-._~+/]+=*`), "BEARER_TOKEN_REDACTED"},
	{regexp.MustCompile(`(?i)password["\s:=]+[^\s"]+`), "PASSWORD_REDACTED"},
	{regexp.MustCompile(`(?i)api[_-]?key["\s:=]+[^\s"]+`), "API_KEY_REDACTED"},
	{regexp.MustCompile(`(?i)secret["\s:=]+[^\s"]+`), "SECRET_REDACTED"},
	{regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`), "GITHUB_TOKEN_REDACTED"},
	{regexp.MustCompile(`sk-[A-Za-z0-9]{48}`), "OPENAI_KEY_REDACTED"},
}

// Redact replaces every match of every rule with its label.
func Redact(text string) string {
	redacted := text
	for _, r := range rules {
		redacted = r.re.ReplaceAllString(redacted, r.label)
	}
	return redacted
}
