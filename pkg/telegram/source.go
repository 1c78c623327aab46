package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/gotd/td/tg"

	"tg2x_go/internal/mirror"
	"tg2x_go/models"
)

// maxMessagesPerRequest — лимит channels.getMessages.
const maxMessagesPerRequest = 100

// FetchItems читает сообщения канала по ID. Удалённые сообщения в ответ не попадают.
func (b *Bot) FetchItems(ctx context.Context, ids []int) ([]models.SourceItem, error) {
	ch, err := b.inputChannel()
	if err != nil {
		return nil, err
	}
	var out []models.SourceItem
	for batch := range slices.Chunk(ids, maxMessagesPerRequest) {
		in := make([]tg.InputMessageClass, len(batch))
		for i, id := range batch {
			in[i] = &tg.InputMessageID{ID: id}
		}
		res, err := b.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{Channel: ch, ID: in})
		if err != nil {
			return nil, fmt.Errorf("get channel messages: %w", err)
		}
		for _, msg := range messagesOf(res) {
			if item, ok := ConvertMessage(msg); ok {
				out = append(out, item)
			}
		}
	}
	slices.SortFunc(out, func(x, y models.SourceItem) int { return x.ID - y.ID })
	return out, nil
}

// FetchRange читает сообщения с ID от from до to включительно.
func (b *Bot) FetchRange(ctx context.Context, from, to int) ([]models.SourceItem, error) {
	if to < from {
		return nil, nil
	}
	ids := make([]int, 0, to-from+1)
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return b.FetchItems(ctx, ids)
}

// DownloadMedia скачивает вложение в dir.
func (b *Bot) DownloadMedia(ctx context.Context, m models.Media, dir string) (string, error) {
	if m.Location == nil {
		return "", errors.New("media has no file location")
	}
	path := filepath.Join(dir, filepath.Base(m.FileName))
	if _, err := b.dl.Download(b.api, m.Location).ToPath(ctx, path); err != nil {
		return "", fmt.Errorf("download %s: %w", m.FileName, err)
	}
	return path, nil
}

func messagesOf(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages
	case *tg.MessagesMessagesSlice:
		return v.Messages
	case *tg.MessagesChannelMessages:
		return v.Messages
	}
	return nil
}

var _ mirror.Source = (*Bot)(nil)
