package telegram

import (
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"tg2x_go/models"
)

// ConvertMessage переводит сообщение канала в SourceItem.
// Служебные и пустые сообщения возвращают false.
func ConvertMessage(msg tg.MessageClass) (models.SourceItem, bool) {
	m, ok := msg.(*tg.Message)
	if !ok {
		return models.SourceItem{}, false
	}
	item := models.SourceItem{
		ID:   m.ID,
		Text: expandTextLinks(m.Message, m.Entities),
		Date: time.Unix(int64(m.Date), 0),
	}
	if gid, ok := m.GetGroupedID(); ok {
		item.GroupID = gid
	}
	if reply, ok := m.GetReplyTo(); ok {
		if h, ok := reply.(*tg.MessageReplyHeader); ok {
			if id, ok := h.GetReplyToMsgID(); ok {
				item.ReplyTo = id
			}
		}
	}
	if media, ok := m.GetMedia(); ok {
		if att, ok := convertMedia(m.ID, media); ok {
			item.Media = append(item.Media, att)
		}
	}
	return item, true
}

// convertMedia поддерживает фото и документы; опросы, геоточки и прочее пропускаются.
func convertMedia(msgID int, media tg.MessageMediaClass) (models.Media, bool) {
	switch v := media.(type) {
	case *tg.MessageMediaPhoto:
		p, ok := v.GetPhoto()
		if !ok {
			return models.Media{}, false
		}
		photo, ok := p.(*tg.Photo)
		if !ok {
			return models.Media{}, false
		}
		thumb := largestPhotoSize(photo.Sizes)
		if thumb == "" {
			return models.Media{}, false
		}
		return models.Media{
			Kind:     models.MediaPhoto,
			FileName: fmt.Sprintf("%d_%d.jpg", msgID, photo.ID),
			MimeType: "image/jpeg",
			Location: &tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     thumb,
			},
		}, true

	case *tg.MessageMediaDocument:
		d, ok := v.GetDocument()
		if !ok {
			return models.Media{}, false
		}
		doc, ok := d.(*tg.Document)
		if !ok {
			return models.Media{}, false
		}
		kind := documentKind(doc)
		return models.Media{
			Kind:     kind,
			FileName: documentFileName(msgID, doc, kind),
			MimeType: doc.MimeType,
			Location: &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}, true
	}
	return models.Media{}, false
}

// largestPhotoSize возвращает тип самого большого размера фото.
func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	best, bestArea := "", -1
	for _, s := range sizes {
		var typ string
		var area int
		switch v := s.(type) {
		case *tg.PhotoSize:
			typ, area = v.Type, v.W*v.H
		case *tg.PhotoSizeProgressive:
			typ, area = v.Type, v.W*v.H
		default:
			continue
		}
		if area > bestArea {
			best, bestArea = typ, area
		}
	}
	return best
}

func documentKind(doc *tg.Document) models.MediaKind {
	animated, video := false, false
	for _, attr := range doc.Attributes {
		switch attr.(type) {
		case *tg.DocumentAttributeAnimated:
			animated = true
		case *tg.DocumentAttributeVideo:
			video = true
		}
	}
	switch {
	case animated || doc.MimeType == "image/gif":
		return models.MediaGIF
	case video || strings.HasPrefix(doc.MimeType, "video/"):
		return models.MediaVideo
	case strings.HasPrefix(doc.MimeType, "image/"):
		return models.MediaPhoto
	}
	return models.MediaDocument
}

// documentFileName даёт файлу расширение, по которому клиент X выберет способ загрузки.
// Анимации Telegram хранит как mp4, поэтому GIF-документ без image/gif сохраняется с .mp4.
func documentFileName(msgID int, doc *tg.Document, kind models.MediaKind) string {
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok && fn.FileName != "" {
			return fmt.Sprintf("%d_%s", msgID, fn.FileName)
		}
	}
	ext := ""
	switch {
	case doc.MimeType == "image/gif":
		ext = ".gif"
	case kind == models.MediaVideo || kind == models.MediaGIF:
		ext = ".mp4"
	default:
		if exts, _ := mime.ExtensionsByType(doc.MimeType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("%d_%d%s", msgID, doc.ID, ext)
}
