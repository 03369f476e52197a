package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"monitord/internal/alert"
	"monitord/internal/bus"
	"monitord/internal/channel"
	"monitord/internal/config"
	"monitord/internal/engine"
	"monitord/internal/platform"
	"monitord/internal/plugin/evmrpc"
	"monitord/internal/plugin/httpapi"
	"monitord/internal/plugin/subprocess"
	"monitord/internal/plugin/wsfeed"
	"monitord/internal/scheduler"
	"monitord/internal/security"
	"monitord/internal/state"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()
	configPath := getenv("CONFIG_PATH", "monitord.yaml")
	limits := security.DefaultLimits()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	natsURL := getenv("NATS_URL", cfg.NATSURL)
	dsn := getenv("DATABASE_URL", cfg.PostgresDSN)
	adminAddr := getenv("ADMIN_ADDR", cfg.AdminAddr)
	if adminAddr == "" {
		adminAddr = ":8091"
	}

	store, err := openStore(ctx, dsn, logger)
	if err != nil {
		logger.Error("failed to open state store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	platforms := platform.NewRegistry()
	for _, p := range []platform.Platform{evmrpc.New(), httpapi.New(), subprocess.New(), wsfeed.New()} {
		if err := platforms.Register(p); err != nil {
			logger.Error("platform registration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if err := platforms.InitializeAll(ctx, cfg.ToPlatformConfigs()); err != nil {
		logger.Error("platform initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var subscriber *bus.Subscriber
	if natsURL != "" {
		subscriber, err = bus.NewSubscriber(natsURL, logger)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer subscriber.Close()
	}

	channels := buildChannels(cfg, subscriber, logger)
	alerts := alert.NewManager(store, channels, logger)
	sched := scheduler.NewRegistry(store, alerts, logger)
	eng := engine.New(sched, platforms, store)

	if err := reconcile(cfg, eng, limits, logger); err != nil {
		logger.Error("reconcile error", slog.String("error", err.Error()))
	}

	if subscriber != nil {
		if err := subscriber.Bind(ctx, eng); err != nil {
			logger.Error("failed to bind control subjects", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	go startAdminServer(adminAddr, eng, logger)

	if getenv("WATCH_CONFIG", "true") == "true" {
		go watchConfig(ctx, configPath, eng, limits, logger)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	eng.Shutdown(shutdownCtx)
}

// openStore connects to Postgres when a DSN is configured, falling back
// to the in-memory store so monitord can run without durability in dev.
func openStore(ctx context.Context, dsn string, logger *slog.Logger) (state.Store, error) {
	if dsn == "" {
		logger.Warn("no DATABASE_URL configured, probe state will not survive restarts")
		return state.NewMemoryStore(), nil
	}
	return state.NewPostgresStore(ctx, dsn)
}

func buildChannels(cfg config.File, subscriber *bus.Subscriber, logger *slog.Logger) *alert.ChannelSet {
	channels := alert.NewChannelSet(logger)
	channels.Register(channel.NewLog(logger))
	if cfg.Channels.WebhookURL != "" {
		allowlist := security.HostAllowlist{Hosts: cfg.Webhooks}
		channels.Register(channel.NewWebhook(cfg.Channels.WebhookURL, allowlist))
	}
	if cfg.Channels.NATSSubject != "" && subscriber != nil {
		channels.Register(channel.NewNATS(subscriber.Conn, cfg.Channels.NATSSubject))
	}
	return channels
}

// reconcile registers every configured probe with the engine. Scheduling
// an already-known id replaces its prior job, so re-running this after a
// config change picks up added and edited probes. Probes removed from the
// file are not unscheduled; they stay armed with their last descriptor.
func reconcile(cfg config.File, eng *engine.Engine, limits security.Limits, logger *slog.Logger) error {
	descriptors, err := cfg.ToProbeDescriptors(limits)
	if err != nil {
		return err
	}
	for _, d := range descriptors {
		if err := eng.RegisterProbe(d); err != nil {
			logger.Error("probe registration failed", slog.String("probeId", d.ID), slog.String("error", err.Error()))
			continue
		}
		logger.Info("probe armed",
			slog.String("probeId", d.ID),
			slog.String("platform", d.Platform),
			slog.Bool("enabled", d.Enabled),
			slog.Duration("interval", d.Interval))
	}
	return nil
}

// watchConfig re-runs reconciliation whenever the config file is
// written. Editors that replace the file rather than writing in place
// emit Create, so both are handled.
func watchConfig(ctx context.Context, path string, eng *engine.Engine, limits security.Limits, logger *slog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("config watcher unavailable", slog.String("error", err.Error()))
		return
	}
	defer watcher.Close()
	// The parent directory is watched, since a watch on the file itself
	// is dropped when the file is replaced.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error("config watcher add failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	target := filepath.Clean(path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			logger.Info("config changed, reconciling", slog.String("path", path))
			cfg, err := config.Load(path)
			if err != nil {
				logger.Error("config reload failed, keeping previous probes", slog.String("error", err.Error()))
				continue
			}
			if err := reconcile(cfg, eng, limits, logger); err != nil {
				logger.Error("reconcile error", slog.String("error", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error("config watcher error", slog.String("error", err.Error()))
		case <-ctx.Done():
			return
		}
	}
}

func getenv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
