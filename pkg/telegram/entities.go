package telegram

import (
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

// expandTextLinks дописывает адрес после текста скрытой ссылки: "текст (https://...)".
// В X нет скрытых ссылок, без этого адрес потерялся бы.
// Смещения сущностей Telegram считаются в UTF-16.
func expandTextLinks(text string, entities []tg.MessageEntityClass) string {
	var links []*tg.MessageEntityTextURL
	for _, e := range entities {
		if l, ok := e.(*tg.MessageEntityTextURL); ok && l.URL != "" {
			links = append(links, l)
		}
	}
	if len(links) == 0 {
		return text
	}
	// с конца, чтобы вставки не сдвигали ещё не обработанные смещения
	slices.SortFunc(links, func(a, b *tg.MessageEntityTextURL) int {
		return (b.Offset + b.Length) - (a.Offset + a.Length)
	})

	units := utf16.Encode([]rune(text))
	for _, l := range links {
		end := l.Offset + l.Length
		if l.Offset < 0 || l.Length <= 0 || end > len(units) {
			continue
		}
		label := strings.TrimSpace(string(utf16.Decode(units[l.Offset:end])))
		if label == l.URL || (strings.HasPrefix(label, "http") && strings.Contains(l.URL, label)) {
			continue
		}
		insert := utf16.Encode([]rune(" (" + l.URL + ")"))
		units = slices.Insert(units, end, insert...)
	}
	return string(utf16.Decode(units))
}
