package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ErrConfiguration — обязательная переменная окружения отсутствует или некорректна.
var ErrConfiguration = errors.New("missing or invalid configuration")

// Config — все настройки процесса, читаются из окружения (и .env).
type Config struct {
	// Telegram
	TelegramAPIID      int
	TelegramAPIHash    string
	TelegramBotToken   string
	TelegramChannel    string // t.me-ссылка, @username или числовой ID канала-источника
	TelegramLogChannel string // куда отправлять запросы подтверждения и уведомления
	AdminUserID        int64
	ProxyAddr          string // SOCKS5 host:port
	ProxyUser          string
	ProxyPassword      string

	// X (Twitter)
	TwitterAPIKey       string
	TwitterAPISecret    string
	TwitterAccessToken  string
	TwitterAccessSecret string
	TwitterUsername     string

	// Хранилище
	DataDir     string
	TempDir     string
	IDMapFile   string
	SudoersFile string
	SessionFile string
	DatabaseURL string

	// HTTP и логи
	Port          string
	AdminAPIToken string
	LogLevel      string
	LogFile       string

	// Тайминги зеркалирования
	AlbumWindow       time.Duration
	EditSettle        time.Duration
	EchoWindow        time.Duration
	ThreadPause       time.Duration
	ApprovalTTL       time.Duration
	SplitLimit        int
	GroupSearchRadius int
}

// LoadEnv подгружает .env и .env.dev, если они есть. Значения из файлов перекрывают окружение.
func LoadEnv(logger *logrus.Logger) {
	files := []string{".env", ".env.dev"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		loaded = append(loaded, file)
	}
	if logger != nil && len(loaded) > 0 {
		logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
	}
}

// Load читает конфигурацию. Все отсутствующие обязательные переменные перечисляются в одной ошибке.
func Load() (*Config, error) {
	dataDir := GetEnv("DATA_DIR", "data")
	cfg := &Config{
		TelegramAPIHash:    os.Getenv("TELEGRAM_API_HASH"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChannel:    firstNonEmpty(os.Getenv("TELEGRAM_CHANNEL"), os.Getenv("TELEGRAM_CHANNEL_ID")),
		TelegramLogChannel: firstNonEmpty(os.Getenv("TELEGRAM_LOG_CHANNEL"), os.Getenv("TELEGRAM_LOG_CHANNEL_ID")),
		ProxyAddr:          os.Getenv("TELEGRAM_PROXY"),
		ProxyUser:          os.Getenv("TELEGRAM_PROXY_USER"),
		ProxyPassword:      os.Getenv("TELEGRAM_PROXY_PASSWORD"),

		TwitterAPIKey:       os.Getenv("TWITTER_API_KEY"),
		TwitterAPISecret:    os.Getenv("TWITTER_API_SECRET"),
		TwitterAccessToken:  os.Getenv("TWITTER_ACCESS_TOKEN"),
		TwitterAccessSecret: os.Getenv("TWITTER_ACCESS_SECRET"),
		TwitterUsername:     os.Getenv("TWITTER_USERNAME"),

		DataDir:     dataDir,
		TempDir:     GetEnv("TEMP_DIR", filepath.Join(dataDir, "temp")),
		IDMapFile:   GetEnv("ID_MAP_FILE", filepath.Join(dataDir, "posted_ids.json")),
		SudoersFile: GetEnv("SUDOERS_FILE", filepath.Join(dataDir, "sudoers.json")),
		SessionFile: GetEnv("SESSION_FILE", filepath.Join(dataDir, "bot_session.json")),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		Port:          GetEnv("PORT", "8080"),
		AdminAPIToken: os.Getenv("ADMIN_API_TOKEN"),
		LogLevel:      GetEnv("LOG_LEVEL", "info"),
		LogFile:       GetEnv("LOG_FILE", filepath.Join("logs", "app.log")),

		AlbumWindow:       GetEnvDuration("ALBUM_WINDOW", 5*time.Second),
		EditSettle:        GetEnvDuration("EDIT_SETTLE", 2*time.Second),
		EchoWindow:        GetEnvDuration("ECHO_WINDOW", 10*time.Second),
		ThreadPause:       GetEnvDuration("THREAD_PAUSE", 2*time.Second),
		ApprovalTTL:       GetEnvDuration("APPROVAL_TTL", 0),
		SplitLimit:        GetEnvInt("SPLIT_LIMIT", 270),
		GroupSearchRadius: GetEnvInt("GROUP_SEARCH_RADIUS", 10),
	}

	var problems []string
	var err error
	if cfg.TelegramAPIID, err = strconv.Atoi(os.Getenv("TELEGRAM_API_ID")); err != nil || cfg.TelegramAPIID <= 0 {
		problems = append(problems, "TELEGRAM_API_ID")
	}
	if cfg.AdminUserID, err = strconv.ParseInt(os.Getenv("ADMIN_USER_ID"), 10, 64); err != nil || cfg.AdminUserID <= 0 {
		problems = append(problems, "ADMIN_USER_ID")
	}
	required := map[string]string{
		"TELEGRAM_API_HASH":     cfg.TelegramAPIHash,
		"TELEGRAM_BOT_TOKEN":    cfg.TelegramBotToken,
		"TELEGRAM_CHANNEL":      cfg.TelegramChannel,
		"TWITTER_API_KEY":       cfg.TwitterAPIKey,
		"TWITTER_API_SECRET":    cfg.TwitterAPISecret,
		"TWITTER_ACCESS_TOKEN":  cfg.TwitterAccessToken,
		"TWITTER_ACCESS_SECRET": cfg.TwitterAccessSecret,
	}
	for _, key := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[key]) == "" {
			problems = append(problems, key)
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, ", "))
	}
	return cfg, nil
}

// EnsureDirs создаёт каталоги данных и временных файлов.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.TempDir, filepath.Dir(c.LogFile)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// GetEnv возвращает переменную окружения или значение по умолчанию.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt возвращает целую переменную окружения; при ошибке разбора — значение по умолчанию.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetEnvDuration понимает и "5s", и просто число секунд.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

// GetLogLevel переводит строку уровня в logrus.Level.
func GetLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
