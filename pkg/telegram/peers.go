package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/gotd/td/tg"
)

// ChannelRef — ссылка на канал из конфигурации: username или числовой ID.
type ChannelRef struct {
	Username string
	ID       int64
}

func (r ChannelRef) String() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(r.ID, 10)
}

// ParseChannelRef принимает https://t.me/name, t.me/name, @name, name или -100…/числовой ID.
func ParseChannelRef(s string) (ChannelRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ChannelRef{}, errors.New("empty channel reference")
	}
	if username, err := ExtractUsername(s); err == nil {
		return ChannelRef{Username: username}, nil
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Bot API записывает каналы как -100<id>
		if id < 0 {
			id = -id
			if id > 1_000_000_000_000 {
				id -= 1_000_000_000_000
			}
		}
		return ChannelRef{ID: id}, nil
	}
	name := strings.TrimPrefix(s, "@")
	if name == "" || strings.ContainsAny(name, "/ ") {
		return ChannelRef{}, fmt.Errorf("invalid channel reference %q", s)
	}
	return ChannelRef{Username: name}, nil
}

// ExtractUsername извлекает username из ссылки t.me.
func ExtractUsername(url string) (string, error) {
	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(url, prefix) {
			name := strings.Trim(strings.TrimPrefix(url, prefix), "/")
			if i := strings.IndexByte(name, '/'); i >= 0 {
				name = name[:i]
			}
			if name == "" {
				break
			}
			return name, nil
		}
	}
	return "", fmt.Errorf("invalid URL format")
}

// FindChannel находит канал в списке чатов: сначала по ID, затем первый вещательный.
func FindChannel(chats []tg.ChatClass, id int64) (*tg.Channel, error) {
	var broadcast *tg.Channel
	for _, peer := range chats {
		ch, ok := peer.(*tg.Channel)
		if !ok {
			continue
		}
		if id != 0 && ch.ID == id {
			return ch, nil
		}
		if broadcast == nil && ch.Broadcast && !ch.Megagroup {
			broadcast = ch
		}
	}
	if id == 0 && broadcast != nil {
		return broadcast, nil
	}
	return nil, fmt.Errorf("broadcast channel not found")
}

// peerCache запоминает access hash каналов и пользователей из обновлений.
type peerCache struct {
	mu       sync.RWMutex
	channels map[int64]int64
	users    map[int64]int64
}

func newPeerCache() *peerCache {
	return &peerCache{channels: make(map[int64]int64), users: make(map[int64]int64)}
}

func (c *peerCache) learn(e tg.Entities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range e.Channels {
		if !ch.Min {
			c.channels[id] = ch.AccessHash
		}
	}
	for id, u := range e.Users {
		if !u.Min {
			c.users[id] = u.AccessHash
		}
	}
}

func (c *peerCache) addChannel(ch *tg.Channel) {
	c.mu.Lock()
	c.channels[ch.ID] = ch.AccessHash
	c.mu.Unlock()
}

func (c *peerCache) channel(id int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.channels[id]
	return h, ok
}

func (c *peerCache) user(id int64) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.users[id]
	return h, ok
}
