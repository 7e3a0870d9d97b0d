package logger

import "regexp"

// Redactor scrubs PII-shaped substrings out of log fields before they hit
// stdout. It's gated by ENABLE_PII_REDACTION since client identity (an IP or
// an org-supplied forwarded-for value) can occasionally carry an embedded
// email or phone number from misbehaving upstream proxies.
type Redactor struct {
	enabled  bool
	patterns []redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor builds a Redactor. When enabled is false, RedactString is a
// no-op passthrough.
func NewRedactor(enabled bool) *Redactor {
	return &Redactor{
		enabled: enabled,
		patterns: []redactPattern{
			{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
			{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
			{regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), "[CC]"},
			{regexp.MustCompile(`\b(?:\+?1[-.]?)?\(?\d{3}\)?[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE]"},
		},
	}
}

// RedactString replaces any PII-shaped substring in s with a placeholder
// token. IP addresses are intentionally left untouched since the gateway's
// own client identity is commonly an IP and redacting it would make the
// logs useless for abuse investigation.
func (r *Redactor) RedactString(s string) string {
	if r == nil || !r.enabled || s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}
