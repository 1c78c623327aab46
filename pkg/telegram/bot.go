// Package telegram — бот на MTProto (gotd): читает канал-источник, отправляет
// запросы подтверждения и уведомления, принимает команды оператора.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
	"github.com/sirupsen/logrus"

	"tg2x_go/internal/mirror"
	"tg2x_go/models"
)

// Events — получатель событий канала и нажатий кнопок.
type Events interface {
	HandleNewItem(item models.SourceItem)
	HandleEditedItem(item models.SourceItem)
	HandleDeletedItems(ids []int)
	HandleCallback(cb mirror.Callback) error
}

// Commands обрабатывает команду из личного чата и возвращает ответ; пустой ответ не отправляется.
type Commands interface {
	Handle(ctx context.Context, userID int64, text string) string
}

// BotConfig — что бот читает и куда пишет.
type BotConfig struct {
	Token      string
	Channel    ChannelRef
	LogChannel *ChannelRef // nil — уведомления в личку владельцу
	AdminID    int64
}

var errNotReady = errors.New("telegram bot is not connected yet")

type Bot struct {
	cfg        BotConfig
	log        *logrus.Entry
	dispatcher tg.UpdateDispatcher
	client     *telegram.Client
	api        *tg.Client
	peers      *peerCache
	dl         *downloader.Downloader

	mu        sync.RWMutex
	channelID int64
	logPeer   tg.InputPeerClass
}

// NewBot создаёт бота. Подключение происходит в Run.
func NewBot(cfg BotConfig, clientCfg ClientConfig, logger *logrus.Logger) (*Bot, error) {
	b := &Bot{
		cfg:        cfg,
		log:        logger.WithField("component", "telegram"),
		dispatcher: tg.NewUpdateDispatcher(),
		peers:      newPeerCache(),
		dl:         downloader.NewDownloader(),
		channelID:  cfg.Channel.ID,
	}
	client, err := NewClient(clientCfg, b.dispatcher)
	if err != nil {
		return nil, err
	}
	b.client = client
	b.api = tg.NewClient(client)
	return b, nil
}

// Run подключается, авторизует бота, находит каналы и вызывает ready.
// Возвращает управление после отмены ctx.
func (b *Bot) Run(ctx context.Context, events Events, commands Commands, ready func(ctx context.Context) error) error {
	b.route(events, commands)
	return b.client.Run(ctx, func(ctx context.Context) error {
		status, err := b.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if _, err := b.client.Auth().Bot(ctx, b.cfg.Token); err != nil {
				return fmt.Errorf("bot auth: %w", err)
			}
		}
		if err := b.resolvePeers(ctx); err != nil {
			return err
		}
		b.log.WithField("channel", b.cfg.Channel.String()).Info("bot connected")
		if ready != nil {
			if err := ready(ctx); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return nil
	})
}

func (b *Bot) resolvePeers(ctx context.Context) error {
	ch, err := b.resolveChannel(ctx, b.cfg.Channel)
	if err != nil {
		return fmt.Errorf("source channel %s: %w", b.cfg.Channel, err)
	}
	b.mu.Lock()
	b.channelID = ch.ID
	b.mu.Unlock()

	if b.cfg.LogChannel == nil {
		return nil
	}
	logCh, err := b.resolveChannel(ctx, *b.cfg.LogChannel)
	if err != nil {
		// без канала логов уведомления уходят владельцу
		b.log.WithError(err).Warn("log channel unavailable, falling back to admin chat")
		return nil
	}
	b.mu.Lock()
	b.logPeer = &tg.InputPeerChannel{ChannelID: logCh.ID, AccessHash: logCh.AccessHash}
	b.mu.Unlock()
	return nil
}

func (b *Bot) resolveChannel(ctx context.Context, ref ChannelRef) (*tg.Channel, error) {
	var chats []tg.ChatClass
	if ref.Username != "" {
		resolved, err := b.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: ref.Username})
		if err != nil {
			return nil, err
		}
		chats = resolved.Chats
	} else {
		hash, _ := b.peers.channel(ref.ID)
		res, err := b.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: ref.ID, AccessHash: hash}})
		if err != nil {
			return nil, err
		}
		switch v := res.(type) {
		case *tg.MessagesChats:
			chats = v.Chats
		case *tg.MessagesChatsSlice:
			chats = v.Chats
		}
	}
	ch, err := FindChannel(chats, ref.ID)
	if err != nil {
		return nil, err
	}
	b.peers.addChannel(ch)
	return ch, nil
}

// route подключает обработчики обновлений.
func (b *Bot) route(events Events, commands Commands) {
	b.dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		b.peers.learn(e)
		if !b.fromSource(u.Message) {
			return nil
		}
		if item, ok := ConvertMessage(u.Message); ok {
			events.HandleNewItem(item)
		}
		return nil
	})
	b.dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		b.peers.learn(e)
		if !b.fromSource(u.Message) {
			return nil
		}
		if item, ok := ConvertMessage(u.Message); ok {
			events.HandleEditedItem(item)
		}
		return nil
	})
	b.dispatcher.OnDeleteChannelMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdateDeleteChannelMessages) error {
		if u.ChannelID != b.sourceID() {
			return nil
		}
		events.HandleDeletedItems(u.Messages)
		return nil
	})
	b.dispatcher.OnBotCallbackQuery(func(ctx context.Context, e tg.Entities, u *tg.UpdateBotCallbackQuery) error {
		b.peers.learn(e)
		err := events.HandleCallback(mirror.Callback{Data: string(u.Data), SenderID: u.UserID, MessageID: u.MsgID})
		b.answerCallback(ctx, u.QueryID, callbackAnswer(err))
		return nil
	})
	b.dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		b.peers.learn(e)
		msg, ok := u.Message.(*tg.Message)
		if !ok || msg.Out || commands == nil {
			return nil
		}
		from, ok := msg.PeerID.(*tg.PeerUser)
		if !ok || !strings.HasPrefix(msg.Message, "/") {
			return nil
		}
		reply := commands.Handle(ctx, from.UserID, msg.Message)
		if reply == "" {
			return nil
		}
		hash, _ := b.peers.user(from.UserID)
		if _, err := b.sendText(ctx, &tg.InputPeerUser{UserID: from.UserID, AccessHash: hash}, reply, nil); err != nil {
			b.log.WithError(err).WithField("user_id", from.UserID).Warn("reply to command")
		}
		return nil
	})
}

func callbackAnswer(err error) string {
	switch {
	case err == nil:
		return "Processing..."
	case errors.Is(err, mirror.ErrUnauthorized):
		return "⛔ You are not allowed to do this."
	case errors.Is(err, mirror.ErrBadCallback):
		return "Unknown action."
	}
	return "Error: " + err.Error()
}

func (b *Bot) answerCallback(ctx context.Context, queryID int64, text string) {
	req := &tg.MessagesSetBotCallbackAnswerRequest{QueryID: queryID}
	req.SetMessage(text)
	if _, err := b.api.MessagesSetBotCallbackAnswer(ctx, req); err != nil {
		b.log.WithError(err).Debug("answer callback query")
	}
}

func (b *Bot) sourceID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.channelID
}

func (b *Bot) fromSource(msg tg.MessageClass) bool {
	m, ok := msg.(*tg.Message)
	if !ok {
		return false
	}
	peer, ok := m.PeerID.(*tg.PeerChannel)
	return ok && peer.ChannelID == b.sourceID()
}

func (b *Bot) inputChannel() (*tg.InputChannel, error) {
	id := b.sourceID()
	hash, ok := b.peers.channel(id)
	if !ok {
		return nil, errNotReady
	}
	return &tg.InputChannel{ChannelID: id, AccessHash: hash}, nil
}
