package telegram

import (
	"database/sql"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"golang.org/x/net/proxy"
)

// ProxyConfig — SOCKS5-прокси для подключения к Telegram.
type ProxyConfig struct {
	Addr     string
	User     string
	Password string
}

// ClientConfig — параметры MTProto-клиента бота.
type ClientConfig struct {
	APIID       int
	APIHash     string
	SessionFile string
	DB          *sql.DB // если задана, сессия хранится в bot_session
	Proxy       *ProxyConfig
}

// NewClient создаёт клиента Telegram с хранилищем сессии и, при необходимости, прокси.
func NewClient(cfg ClientConfig, h telegram.UpdateHandler) (*telegram.Client, error) {
	var storage session.Storage = &session.StorageMemory{}
	switch {
	case cfg.DB != nil:
		storage = &DBSessionStorage{DB: cfg.DB, Name: "bot"}
	case cfg.SessionFile != "":
		storage = &telegram.FileSessionStorage{Path: cfg.SessionFile}
	}

	opts := telegram.Options{SessionStorage: storage, UpdateHandler: h}
	if p := cfg.Proxy; p != nil && p.Addr != "" {
		var auth *proxy.Auth
		if p.User != "" || p.Password != "" {
			auth = &proxy.Auth{User: p.User, Password: p.Password}
		}
		d, err := proxy.SOCKS5("tcp", p.Addr, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		dc, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer missing context")
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dc.DialContext})
	}
	return telegram.NewClient(cfg.APIID, cfg.APIHash, opts), nil
}
