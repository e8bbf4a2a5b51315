package stringutils

import (
	"regexp"
	"strings"
	"unicode"
)

// DefaultTitleLength is the maximum rune length of generated conversation titles.
const DefaultTitleLength = 60

var (
	urlPattern          = regexp.MustCompile(`(?i)(https?://|ftp://|www\.|upload://)[^\s]+`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)
	mentionPattern      = regexp.MustCompile(`(^|\s)@[\w.-]+`)
	multiSpacePattern   = regexp.MustCompile(`\s+`)
)

// SanitizeTitleContent strips links, mentions and symbols from a chat message.
// Letters, digits and the punctuation .,!?-'# survive.
func SanitizeTitleContent(content string) string {
	content = markdownLinkPattern.ReplaceAllString(content, "$1")
	content = urlPattern.ReplaceAllString(content, "")
	content = mentionPattern.ReplaceAllString(content, "$1")

	var b strings.Builder
	for _, r := range content {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) || strings.ContainsRune(".,!?-'#", r) {
			b.WriteRune(r)
		}
	}

	content = multiSpacePattern.ReplaceAllString(b.String(), " ")
	content = strings.TrimSpace(content)
	return strings.TrimRight(content, " .,!?-'")
}

// TruncateTitle cuts title to at most maxLen runes, preferring a word boundary, and appends "...".
func TruncateTitle(title string, maxLen int) string {
	runes := []rune(title)
	if maxLen <= 0 || len(runes) <= maxLen {
		return title
	}

	const ellipsis = "..."
	limit := maxLen - len(ellipsis)
	if limit <= 0 {
		return string(runes[:maxLen])
	}

	truncated := string(runes[:limit])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > len(truncated)/2 {
		truncated = strings.TrimRight(truncated[:lastSpace], " ")
	}
	return truncated + ellipsis
}

// GenerateTitle derives a conversation title from the first user message.
// It returns "" when nothing printable is left.
func GenerateTitle(content string, maxLen int) string {
	sanitized := SanitizeTitleContent(content)
	if sanitized == "" {
		return ""
	}
	return TruncateTitle(sanitized, maxLen)
}
