package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/gotd/td/tg"

	"tg2x_go/internal/mirror"
	"tg2x_go/models"
)

var levelEmoji = map[mirror.Level]string{
	mirror.LevelInfo:    "ℹ️",
	mirror.LevelSuccess: "✅",
	mirror.LevelWarning: "⚠️",
	mirror.LevelError:   "🚨",
	mirror.LevelStart:   "🚀",
}

// FormatNotice оформляет уведомление так же, как оно выглядит в канале логов.
func FormatNotice(level mirror.Level, text string) string {
	emoji, ok := levelEmoji[level]
	if !ok {
		emoji = levelEmoji[mirror.LevelInfo]
	}
	return fmt.Sprintf("%s [%s]\n\n%s", emoji, level, text)
}

// SendPrompt отправляет оператору сообщение с inline-кнопками.
func (b *Bot) SendPrompt(ctx context.Context, text string, buttons []models.Button) (int, error) {
	peer, err := b.operatorPeer()
	if err != nil {
		return 0, err
	}
	row := make([]tg.KeyboardButtonClass, len(buttons))
	for i, btn := range buttons {
		row[i] = &tg.KeyboardButtonCallback{Text: btn.Text, Data: []byte(btn.Data)}
	}
	markup := &tg.ReplyInlineMarkup{Rows: []tg.KeyboardButtonRow{{Buttons: row}}}
	return b.sendText(ctx, peer, text, markup)
}

// EditPrompt заменяет текст запроса и убирает кнопки.
func (b *Bot) EditPrompt(ctx context.Context, msgID int, text string) error {
	peer, err := b.operatorPeer()
	if err != nil {
		return err
	}
	req := tg.MessagesEditMessageRequest{Peer: peer, ID: msgID, NoWebpage: true}
	req.SetMessage(text)
	if _, err := b.api.MessagesEditMessage(ctx, &req); err != nil {
		if strings.Contains(err.Error(), "MESSAGE_NOT_MODIFIED") {
			return nil
		}
		return fmt.Errorf("edit message %d: %w", msgID, err)
	}
	return nil
}

// Notify отправляет уведомление; ошибка отправки только логируется.
func (b *Bot) Notify(ctx context.Context, level mirror.Level, text string) {
	peer, err := b.operatorPeer()
	if err == nil {
		_, err = b.sendText(ctx, peer, FormatNotice(level, text), nil)
	}
	if err != nil {
		b.log.WithError(err).WithField("level", level).Warn("notification not delivered")
	}
}

// operatorPeer — канал логов, а без него личный чат владельца.
func (b *Bot) operatorPeer() (tg.InputPeerClass, error) {
	b.mu.RLock()
	peer := b.logPeer
	b.mu.RUnlock()
	if peer != nil {
		return peer, nil
	}
	hash, ok := b.peers.user(b.cfg.AdminID)
	if !ok {
		return nil, errors.New("admin chat unknown: send /start to the bot first")
	}
	return &tg.InputPeerUser{UserID: b.cfg.AdminID, AccessHash: hash}, nil
}

func (b *Bot) sendText(ctx context.Context, peer tg.InputPeerClass, text string, markup tg.ReplyMarkupClass) (int, error) {
	req := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   text,
		RandomID:  rand.Int63(),
		NoWebpage: true,
	}
	if markup != nil {
		req.SetReplyMarkup(markup)
	}
	upd, err := b.api.MessagesSendMessage(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return sentMessageID(upd)
}

// sentMessageID достаёт ID отправленного сообщения из ответа sendMessage.
func sentMessageID(upd tg.UpdatesClass) (int, error) {
	switch v := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return v.ID, nil
	case *tg.Updates:
		for _, u := range v.Updates {
			switch m := u.(type) {
			case *tg.UpdateMessageID:
				return m.ID, nil
			case *tg.UpdateNewMessage:
				return m.Message.GetID(), nil
			case *tg.UpdateNewChannelMessage:
				return m.Message.GetID(), nil
			}
		}
	}
	return 0, fmt.Errorf("no message id in %T", upd)
}

var _ mirror.Operator = (*Bot)(nil)
