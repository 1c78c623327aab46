package models

import (
	"time"

	"github.com/gotd/td/tg"
)

// MediaKind описывает тип вложения поста.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaGIF      MediaKind = "gif"
	MediaDocument MediaKind = "document"
)

// Media — ссылка на вложение сообщения канала.
// Location нужен только для скачивания и в JSON не попадает.
type Media struct {
	Kind     MediaKind                 `json:"kind"`
	FileName string                    `json:"file_name"`
	MimeType string                    `json:"mime_type"`
	Location tg.InputFileLocationClass `json:"-"`
}

// SourceItem — одно сообщение из канала-источника.
// ID назначается Telegram и монотонно растёт; GroupID != 0 у частей альбома.
type SourceItem struct {
	ID      int       `json:"id"`
	GroupID int64     `json:"group_id,omitempty"`
	Text    string    `json:"text"`
	Media   []Media   `json:"media,omitempty"`
	ReplyTo int       `json:"reply_to,omitempty"` // 0 — не ответ
	Date    time.Time `json:"date"`
}

// Grouped сообщает, является ли сообщение частью альбома.
func (s SourceItem) Grouped() bool { return s.GroupID != 0 }

// ItemIDs возвращает идентификаторы сообщений в исходном порядке.
func ItemIDs(items []SourceItem) []int {
	ids := make([]int, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// FirstText возвращает первый непустой текст пачки.
// Тексты не склеиваются: подпись альбома в Telegram хранится в одном сообщении.
func FirstText(items []SourceItem) string {
	for _, it := range items {
		if it.Text != "" {
			return it.Text
		}
	}
	return ""
}
