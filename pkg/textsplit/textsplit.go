// Package textsplit делит длинный текст на части под лимит одного поста.
package textsplit

import (
	"fmt"
	"strings"
)

// DefaultLimit оставляет запас под суффикс " (i/n)" в пределах 280 символов X.
const DefaultLimit = 270

// Split делит текст на части длиной не более limit символов.
// Разрез делается по последнему пробелу перед лимитом, без пробела — ровно по лимиту.
// Если частей больше одной, к каждой добавляется суффикс " (i/n)".
func Split(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	rest := []rune(text)
	if len(rest) <= limit {
		return []string{text}
	}

	var parts []string
	for len(rest) > limit {
		cut := lastSpace(rest[:limit])
		if cut <= 0 {
			cut = limit
		}
		parts = append(parts, string(rest[:cut]))
		rest = []rune(strings.TrimSpace(string(rest[cut:])))
	}
	if len(rest) > 0 {
		parts = append(parts, string(rest))
	}

	for i := range parts {
		parts[i] = fmt.Sprintf("%s (%d/%d)", parts[i], i+1, len(parts))
	}
	return parts
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}
