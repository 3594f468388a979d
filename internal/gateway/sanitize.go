package gateway

import (
	"strings"
	"unicode/utf8"
)

const maxContentLen = 2000

// entityReplacer encodes the five characters a downstream renderer must
// never interpret as markup. A single Replacer pass never re-encodes the
// ampersands produced by the other substitutions.
var entityReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize normalizes untrusted message content for storage and
// redisplay as plain text. Anything that is not a string yields the
// empty string.
func Sanitize(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}

	s = strings.TrimSpace(s)
	// Truncate on rune boundaries so multi-byte characters are never
	// split into invalid UTF-8.
	if utf8.RuneCountInString(s) > maxContentLen {
		s = string([]rune(s)[:maxContentLen])
	}

	return entityReplacer.Replace(s)
}
