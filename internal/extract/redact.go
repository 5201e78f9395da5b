package extract

import "regexp"

// Sensitive patterns are stripped before any text leaves the system
// boundary toward an external AI call.
var (
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
)

// Redact replaces SSN, email, and phone-number patterns with fixed
// placeholder tokens. Pure and idempotent; malformed input passes
// through untouched.
func Redact(text string) string {
	redacted := ssnPattern.ReplaceAllString(text, "[REDACTED-SSN]")
	redacted = emailPattern.ReplaceAllString(redacted, "[REDACTED-EMAIL]")
	redacted = phonePattern.ReplaceAllString(redacted, "[REDACTED-PHONE]")
	return redacted
}
