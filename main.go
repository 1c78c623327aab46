package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tg2x_go/internal/admin"
	"tg2x_go/internal/commands"
	"tg2x_go/internal/config"
	"tg2x_go/internal/logging"
	"tg2x_go/internal/metrics"
	"tg2x_go/internal/mirror"
	"tg2x_go/pkg/storage"
	"tg2x_go/pkg/telegram"
	"tg2x_go/pkg/twitter"
)

// exitRestart — код выхода после /restart; супервизор поднимает процесс заново.
const exitRestart = 3

func main() {
	boot := logrus.New()
	config.LoadEnv(boot)
	cfg, err := config.Load()
	if err != nil {
		boot.Fatalf("Config error: %v", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		boot.Fatalf("Failed to prepare directories: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logger.WithError(err).Warn("log file is unavailable, logging to stdout only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var restart atomic.Bool
	if err := run(ctx, cfg, logger, func() {
		restart.Store(true)
		stop()
	}); err != nil {
		logger.Fatalf("Stopped with error: %v", err)
	}
	if restart.Load() {
		logger.Info("Restarting on operator request")
		os.Exit(exitRestart)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, restart func()) error {
	// Карта ID и сессия: PostgreSQL, если задан DATABASE_URL, иначе файлы в DATA_DIR
	var (
		idmap     mirror.IDMap
		clientCfg = telegram.ClientConfig{
			APIID:       cfg.TelegramAPIID,
			APIHash:     cfg.TelegramAPIHash,
			SessionFile: cfg.SessionFile,
		}
	)
	if cfg.DatabaseURL != "" {
		db, err := storage.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		pgMap, err := storage.LoadPostgresIDMap(ctx, db)
		if err != nil {
			return err
		}
		idmap = pgMap
		clientCfg.DB = db.Conn
		logger.Info("Using PostgreSQL storage")
	} else {
		fileMap, err := storage.LoadFileIDMap(cfg.IDMapFile)
		if err != nil {
			return err
		}
		idmap = fileMap
	}
	if cfg.ProxyAddr != "" {
		clientCfg.Proxy = &telegram.ProxyConfig{Addr: cfg.ProxyAddr, User: cfg.ProxyUser, Password: cfg.ProxyPassword}
	}

	sudoers, err := storage.LoadSudoers(cfg.SudoersFile, cfg.AdminUserID)
	if err != nil {
		return err
	}

	source, err := telegram.ParseChannelRef(cfg.TelegramChannel)
	if err != nil {
		return err
	}
	botCfg := telegram.BotConfig{Token: cfg.TelegramBotToken, Channel: source, AdminID: cfg.AdminUserID}
	if cfg.TelegramLogChannel != "" {
		logRef, err := telegram.ParseChannelRef(cfg.TelegramLogChannel)
		if err != nil {
			return err
		}
		botCfg.LogChannel = &logRef
	}
	bot, err := telegram.NewBot(botCfg, clientCfg, logger)
	if err != nil {
		return err
	}

	x := twitter.NewClient(twitter.Credentials{
		APIKey:       cfg.TwitterAPIKey,
		APISecret:    cfg.TwitterAPISecret,
		AccessToken:  cfg.TwitterAccessToken,
		AccessSecret: cfg.TwitterAccessSecret,
	},
		twitter.WithLogger(logger),
		twitter.WithSplitLimit(cfg.SplitLimit),
		twitter.WithThreadPause(cfg.ThreadPause),
	)

	orch := mirror.New(mirror.Deps{
		Source:    bot,
		Operator:  bot,
		Publisher: x,
		IDMap:     idmap,
		Auth:      sudoers,
		Metrics:   metrics.New(prometheus.DefaultRegisterer),
		Log:       logger,
	}, mirror.Options{
		AlbumWindow:       cfg.AlbumWindow,
		EditSettle:        cfg.EditSettle,
		EchoWindow:        cfg.EchoWindow,
		ApprovalTTL:       cfg.ApprovalTTL,
		GroupSearchRadius: cfg.GroupSearchRadius,
		StagingDir:        cfg.TempDir,
		PostURL: func(id string) string {
			return twitter.PostURL(cfg.TwitterUsername, id)
		},
	})
	defer orch.Close()

	cmds := commands.New(commands.Config{
		Access:  sudoers,
		Stats:   orch,
		LogFile: cfg.LogFile,
		Restart: restart,
		Log:     logger,
	})

	router := admin.SetupRouter(orch, prometheus.DefaultGatherer, cfg.AdminAPIToken, logger)
	adminErr := make(chan error, 1)
	go func() {
		adminErr <- admin.Serve(ctx, net.JoinHostPort("", cfg.Port), router, logger)
	}()

	ready := func(ctx context.Context) error {
		bot.Notify(ctx, mirror.LevelStart, "System Online. Monitoring "+source.String())
		if cfg.ApprovalTTL > 0 {
			go orch.RunJanitor(ctx)
		}
		return nil
	}
	logger.WithField("mapped", idmap.Len()).Info("Starting TG2X mirror")
	if err := bot.Run(ctx, orch, cmds, ready); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := <-adminErr; err != nil {
		logger.WithError(err).Error("admin server")
	}
	return nil
}
