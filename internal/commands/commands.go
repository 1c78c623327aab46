// Package commands — команды оператора в личном чате с ботом.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"tg2x_go/internal/mirror"
)

const (
	logTailLines = 15
	logTailChars = 4000
	restartDelay = time.Second
)

// Access — владелец и администраторы бота.
type Access interface {
	IsOwner(userID int64) bool
	IsAuthorized(userID int64) bool
	Add(userID int64) (bool, error)
	Remove(userID int64) (bool, error)
	List() []int64
}

// StatsSource — источник счётчиков для /status.
type StatsSource interface {
	Stats() mirror.Stats
}

type Config struct {
	Access  Access
	Stats   StatsSource
	LogFile string
	Restart func() // вызывается после ответа на /restart
	Log     *logrus.Logger
	Now     func() time.Time
}

type Handler struct {
	access  Access
	stats   StatsSource
	logFile string
	restart func()
	log     *logrus.Entry
	now     func() time.Time
}

func New(cfg Config) *Handler {
	h := &Handler{
		access:  cfg.Access,
		stats:   cfg.Stats,
		logFile: cfg.LogFile,
		restart: cfg.Restart,
		now:     cfg.Now,
	}
	logger := cfg.Log
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h.log = logger.WithField("component", "commands")
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Handle выполняет команду и возвращает текст ответа. Не команда — пустая строка.
func (h *Handler) Handle(_ context.Context, userID int64, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]
	owner := h.access.IsOwner(userID)
	sudo := h.access.IsAuthorized(userID)

	switch cmd {
	case "/start":
		return "🤖 TG2XPoster Active\nI am running privately. Unauthorized access is restricted."
	case "/help":
		if !sudo {
			return "⛔ Access Denied."
		}
		return helpText(owner)
	case "/status", "/ping", "/logs", "/restart", "/addsudo", "/rmsudo", "/sudolist":
		if !sudo {
			h.log.WithFields(logrus.Fields{"user_id": userID, "command": cmd}).Warn("command from unauthorized user")
			return "⛔ Access Denied: You are not authorized to manage this bot."
		}
	default:
		return ""
	}

	switch cmd {
	case "/ping":
		return "🏓 Pong! System is operational."
	case "/status":
		return h.status(owner)
	case "/logs":
		return h.logs()
	case "/restart":
		h.log.WithField("user_id", userID).Warn("restart requested")
		if h.restart != nil {
			time.AfterFunc(restartDelay, h.restart)
		}
		return "🔄 Rebooting..."
	case "/addsudo":
		return h.changeSudo(owner, args, "/addsudo", h.access.Add,
			"✅ User %d added to Sudo list.", "⚠️ User is already authorized or invalid.")
	case "/rmsudo":
		return h.changeSudo(owner, args, "/rmsudo", h.access.Remove,
			"🗑 User %d removed from Sudo list.", "⚠️ User not found in Sudo list.")
	case "/sudolist":
		if !owner {
			return ""
		}
		return sudoList(h.access.List())
	}
	return ""
}

func helpText(owner bool) string {
	var b strings.Builder
	b.WriteString("🛠 ADMIN COMMANDS\n\n")
	b.WriteString("📊 /status - System stats\n")
	b.WriteString("🏓 /ping - Health check\n")
	b.WriteString("📋 /logs - View logs\n")
	b.WriteString("🔄 /restart - Reboot system\n")
	if owner {
		b.WriteString("\n👑 OWNER COMMANDS\n")
		b.WriteString("➕ /addsudo <ID> - Add admin\n")
		b.WriteString("➖ /rmsudo <ID> - Remove admin\n")
		b.WriteString("📜 /sudolist - List admins")
	}
	return b.String()
}

func (h *Handler) status(owner bool) string {
	role := "👮 Sudo"
	if owner {
		role = "👑 Owner"
	}
	var st mirror.Stats
	if h.stats != nil {
		st = h.stats.Stats()
	}
	uptime := time.Duration(0)
	if !st.StartedAt.IsZero() {
		uptime = h.now().Sub(st.StartedAt).Truncate(time.Second)
	}
	return fmt.Sprintf("📊 SYSTEM STATUS\n\n"+
		"🛡 User Role: %s\n"+
		"✅ State: Online\n"+
		"⏱ Uptime: %s\n"+
		"🐦 Tweets: %d\n"+
		"⏳ Pending: %d posts, %d edits",
		role, uptime, st.Published, st.PendingPosts, st.PendingEdits)
}

func (h *Handler) logs() string {
	tail, err := tailFile(h.logFile, logTailLines, logTailChars)
	if errors.Is(err, os.ErrNotExist) || (err == nil && tail == "") {
		return "⚠️ No logs found."
	}
	if err != nil {
		return fmt.Sprintf("❌ Error: %v", err)
	}
	return "📋 LOGS\n\n" + tail
}

func (h *Handler) changeSudo(owner bool, args []string, usage string, change func(int64) (bool, error), okText, noopText string) string {
	if !owner {
		return "⛔ Only the Owner can manage admins."
	}
	if len(args) == 0 {
		return fmt.Sprintf("❌ Usage: %s 123456789", usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Sprintf("❌ Usage: %s 123456789", usage)
	}
	changed, err := change(id)
	if err != nil {
		h.log.WithError(err).Error("persist sudoers")
	}
	if !changed {
		return noopText
	}
	return fmt.Sprintf(okText, id)
}

func sudoList(ids []int64) string {
	if len(ids) == 0 {
		return "📜 Sudo List: Empty (Only Owner)."
	}
	var b strings.Builder
	b.WriteString("📜 Sudo Users:")
	for _, id := range ids {
		fmt.Fprintf(&b, "\n- %d", id)
	}
	return b.String()
}

// tailFile возвращает последние lines строк файла, не длиннее chars символов.
func tailFile(path string, lines, chars int) (string, error) {
	if path == "" {
		return "", os.ErrNotExist
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	all := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	tail := []rune(strings.Join(all, "\n"))
	if len(tail) > chars {
		tail = tail[len(tail)-chars:]
	}
	return string(tail), nil
}
