package validation

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

var (
	// DomainRegex validates domain format
	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	// schemePrefix matches an optional http(s) scheme followed by an optional www. label
	schemePrefix = regexp.MustCompile(`^(https?://)?(www\.)?`)

	// trailingSlashes matches any run of slashes at the end of the input
	trailingSlashes = regexp.MustCompile(`/+$`)
)

// NormalizeDomain turns user input such as "https://www.Example.com/" into
// "example.com". It does not validate the result; an empty string means
// there was nothing left to submit.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = schemePrefix.ReplaceAllString(d, "")
	d = trailingSlashes.ReplaceAllString(d, "")
	return strings.TrimSpace(d)
}

// IsValidDomain checks if the string is a valid domain format
func IsValidDomain(domain string) bool {
	if len(domain) > 253 {
		return false
	}
	return domainRegex.MatchString(domain)
}

// IsSafeFileName reports whether name can be used as a single path element
// when writing a downloaded artifact to disk.
func IsSafeFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return false
	}
	return path.Base(name) == name
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except tabs; ANSI escape sequences start
	// with ESC and are dropped with it
	var result strings.Builder
	for _, r := range s {
		if r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

var htmlReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes HTML special characters
func EscapeHTML(s string) string {
	return htmlReplacer.Replace(s)
}

// TruncateString truncates a string to maxLen runes, marking the cut with "..."
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
