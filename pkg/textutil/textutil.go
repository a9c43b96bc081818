package textutil

import (
	"regexp"
	"strings"
)

var (
	replyPrefixRegex   = regexp.MustCompile(`(?i)^(re|fwd|fw|aw|sv|vs|antw|r|odp|回复|答复|转发):\s*`)
	bracketPrefixRegex = regexp.MustCompile(`^\[.*?\]\s*`)
	htmlTagRegex       = regexp.MustCompile(`<[^>]+>`)
	whitespaceRegex    = regexp.MustCompile(`\s+`)
)

// NormalizeSubject strips reply/forward prefixes and list tags so that replies
// across a thread normalize to the same value. Applying it twice yields the
// same result as applying it once.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		stripped := replyPrefixRegex.ReplaceAllString(s, "")
		stripped = bracketPrefixRegex.ReplaceAllString(stripped, "")
		stripped = strings.TrimSpace(stripped)
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.ToLower(s)
	if len(s) > 100 {
		// Cap on runes so a multibyte subject never truncates mid-character.
		runes := []rune(s)
		if len(runes) > 100 {
			runes = runes[:100]
		}
		s = string(runes)
	}
	return s
}

// StripHTML removes tags and collapses whitespace from an HTML body.
func StripHTML(body string) string {
	text := htmlTagRegex.ReplaceAllString(body, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

// Snippet returns the first n characters of text, cut on a rune boundary.
func Snippet(text string, n int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}

// Truncate caps text at n characters and appends a marker when anything
// was removed.
func Truncate(text string, n int, marker string) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + marker
}

// EstimateTokens approximates the token count of a string as one token per
// four characters.
func EstimateTokens(s string) int {
	return len(s) / 4
}

// ExtractDomain returns the domain part of an email address, lowercased.
func ExtractDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}
