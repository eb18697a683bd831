package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/bwmarrin/discordgo"

	"antitrigger/internal/alerts"
	"antitrigger/internal/api"
	"antitrigger/internal/config"
	"antitrigger/internal/engine"
	"antitrigger/internal/ingest"
	"antitrigger/internal/logging"
	"antitrigger/internal/metrics"
	"antitrigger/internal/model"
	"antitrigger/internal/notify"
	"antitrigger/internal/storage"
)

var version = "dev"

func main() {
	cfgPath := flag.String("config", "antitrigger.yaml", "path to config file (yaml or json)")
	flag.Parse()
	*cfgPath = config.ResolvePath(*cfgPath)

	if _, err := os.Stat(*cfgPath); errors.Is(err, os.ErrNotExist) {
		if err := config.Save(*cfgPath, config.DefaultConfig()); err != nil {
			slog.Error("failed to write default config", "path", *cfgPath, "err", err)
			os.Exit(1)
		}
	}
	mgr, err := config.NewManager(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", *cfgPath, "err", err)
		os.Exit(1)
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage open failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	if err := store.Init(ctx); err != nil {
		logger.Error("storage init failed", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	defer store.Close()

	var session *discordgo.Session
	if needsDiscord(cfg) {
		session, err = discordgo.New("Bot " + cfg.Ingest.Discord.Token)
		if err != nil {
			logger.Error("discord session create failed", "err", err)
			os.Exit(1)
		}
	}

	notifiers := []notify.Notifier{notify.NewWebhookNotifier(cfg.Notify.SendTimeout, cfg.Notify.RateLimit)}
	if session != nil {
		notifiers = append(notifiers, notify.NewDiscordNotifier(session, cfg.Notify.RateLimit))
	}
	dispatcher := notify.NewDispatcher(ctx, cfg.Notify, logger, notifiers...)

	metricsStore := metrics.NewStore(cfg.Metrics.StoreLimit)
	alertStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	eng := engine.NewEngine(cfg, logger, metricsStore, alertStore, store, dispatcher)

	events := make(chan model.RawEvent, cfg.Ingest.ChannelBuffer)
	engineDone := eng.Start(ctx, events)

	parser := ingest.NewParser(cfg.Ingest.Parser.Timezone)
	ingest.StartREST(ctx, mgr, parser, events, logger)
	ingest.StartSyslog(ctx, mgr, parser, events, logger)
	ingest.StartTCPStream(ctx, mgr, parser, events, logger)
	ingest.StartFileTail(ctx, mgr, parser, events, logger)
	ingest.StartKafka(ctx, mgr, parser, events, logger)
	ingest.StartNATS(ctx, mgr, parser, events, logger)
	ingest.StartDiscord(ctx, mgr, session, events, logger)
	if session != nil {
		if err := session.Open(); err != nil {
			logger.Error("discord gateway connect failed", "err", err)
			os.Exit(1)
		}
		defer session.Close()
		logger.Info("discord connected", "user", session.State.User.Username)
	}

	api.Start(ctx, mgr, metricsStore, alertStore, eng, logger, version)

	stopWatch := make(chan struct{})
	go func() {
		err := mgr.Watch(func(next *config.Config) {
			eng.UpdateConfig(next)
			parser.SetTimezone(next.Ingest.Parser.Timezone)
			dispatcher.UpdateConfig(next.Notify)
			logger.Info("config reloaded", "path", mgr.Path())
		}, func(err error) {
			logger.Warn("config reload failed", "err", err)
		}, stopWatch)
		if err != nil {
			logger.Warn("config watcher unavailable, hot reload disabled", "err", err)
		}
	}()

	logger.Info("antitrigger started",
		"version", version,
		"storage", cfg.Storage.Driver,
		"burst_window", cfg.Detection.Burst.Window.String(),
		"burst_threshold", cfg.Detection.Burst.Threshold,
		"destinations", len(cfg.Notify.Destinations),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	close(stopWatch)
	done := make(chan struct{})
	go func() {
		dispatcher.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("notification drain timed out")
	}
	cancel()
	select {
	case <-engineDone:
	case <-time.After(5 * time.Second):
		logger.Warn("engine did not stop in time")
	}
	logger.Info("goodbye")
}

func needsDiscord(cfg *config.Config) bool {
	if cfg.Ingest.Discord.Enabled {
		return true
	}
	for _, d := range cfg.Notify.Destinations {
		if d.Notifier == "discord" {
			return true
		}
	}
	return false
}
