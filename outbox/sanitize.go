package outbox

import (
	"regexp"
	"strings"
)

const (
	maxErrorRunes   = 512
	truncatedSuffix = "... (truncated)"
	redacted        = "[REDACTED]"
)

type redaction struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order; URL credentials go first so the password never reaches
// the key=value rule.
var redactions = []redaction{
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:\s/@]+):[^@\s]+@`), "${1}:" + redacted + "@"},
	{regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9\-._~+/]+=*`), "Bearer " + redacted},
	{regexp.MustCompile(`(?i)\bbasic\s+[a-z0-9+/]{8,}=*`), "Basic " + redacted},
	{regexp.MustCompile(`\beyJ[\w-]+\.[\w-]+\.[\w-]+`), redacted},
	{regexp.MustCompile(`\b(?:sk|pk|rk|whsec)_(?:live|test)?_?[A-Za-z0-9]{8,}`), redacted},
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), redacted},
	{regexp.MustCompile(`(?i)([?&](?:token|key|api_key|signature|password|secret)=)[^&\s]+`), "${1}" + redacted},
	{regexp.MustCompile(`(?i)\b(api[-_]?key|secret|password|passwd|token|client[-_]?secret|private[-_]?key)(\s*[:=]\s*)("[^"]*"|[^\s,;&]+)`), "${1}${2}" + redacted},
}

// SanitizeError renders err for storage in last_error: secrets redacted and
// the result bounded to 512 runes.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeMessage(err.Error())
}

// SanitizeMessage redacts credentials from msg and truncates it. Invalid
// UTF-8, such as a response body cut mid-character, is replaced with U+FFFD
// so the result is always storable as text.
func SanitizeMessage(msg string) string {
	msg = strings.TrimSpace(strings.ToValidUTF8(msg, "\uFFFD"))
	for _, r := range redactions {
		msg = r.re.ReplaceAllString(msg, r.repl)
	}
	return truncate(msg)
}

func truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorRunes {
		return msg
	}
	keep := maxErrorRunes - len([]rune(truncatedSuffix))
	return string(runes[:keep]) + truncatedSuffix
}
