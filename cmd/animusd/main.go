package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/async"
	"github.com/animus-host/animus/pkg/bus"
	"github.com/animus-host/animus/pkg/config"
	"github.com/animus-host/animus/pkg/events"
	"github.com/animus-host/animus/pkg/execution"
	"github.com/animus-host/animus/pkg/lifecycle"
	"github.com/animus-host/animus/pkg/loader"
	"github.com/animus-host/animus/pkg/monitor"
	"github.com/animus-host/animus/pkg/observability"
	"github.com/animus-host/animus/pkg/plugin"
	"github.com/animus-host/animus/pkg/security"
	"github.com/animus-host/animus/pkg/store"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("animusd failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := cfg.NewLogger()
	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	// The runtime is one explicitly constructed object graph: no package
	// level singletons, so tests and multi-tenant hosts can build isolated
	// runtimes.
	registry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(registry)
	emitter := events.NewEmitter(log)
	evaluator := security.NewEvaluator(log)
	manager := lifecycle.NewManager(lifecycle.Config{
		Evaluator: evaluator,
		Emitter:   emitter,
		Store:     st,
		Log:       log,
	})
	mon := monitor.New(manager, metrics, log)
	engine := execution.NewEngine(manager, evaluator, mon, emitter, log)
	b := bus.New(log,
		bus.WithMetrics(metrics),
		bus.WithReplayWindow(cfg.ReplayWindow),
		bus.WithDefaultTimeout(cfg.RequestTimeout),
	)

	// Mirror runtime events into the structured log for external observers.
	emitter.Subscribe(func(ev events.Event) {
		entry := log.WithFields(logrus.Fields{"event": ev.Type, "plugin": ev.PluginID})
		if ev.Err != nil {
			entry.WithError(ev.Err).Warn("runtime event")
			return
		}
		entry.Debug("runtime event")
	})

	// The host answers plugin execution requests over the bus so plugins
	// can invoke each other without direct references.
	b.Respond("plugin.execute", func(ctx context.Context, data any) (any, error) {
		req, ok := data.(*ExecuteRequest)
		if !ok {
			return nil, fmt.Errorf("plugin.execute expects *ExecuteRequest, got %T", data)
		}
		return engine.Execute(ctx, req.PluginID, req.Input)
	})

	// Discover and register scripted plugins, restore persisted state over
	// them, then enable whatever the restored (or default) enabled flag says.
	ld := loader.New(cfg.PluginDirs, log)
	discovered, err := ld.Discover(ctx)
	if err != nil {
		return err
	}
	for _, p := range discovered {
		if err := manager.Register(ctx, p); err != nil {
			log.WithField("plugin", p.Descriptor().ID).WithError(err).Warn("plugin registration rejected")
		}
	}
	if err := manager.Restore(ctx); err != nil {
		log.WithError(err).Warn("state restore failed, starting fresh")
	}
	for _, v := range manager.List() {
		if v.State.Enabled {
			if err := manager.Enable(ctx, v.Descriptor.ID); err != nil {
				log.WithField("plugin", v.Descriptor.ID).WithError(err).Warn("plugin enable failed")
			}
		}
	}

	if cfg.WatchPlugins {
		watcher, err := loader.NewWatcher(cfg.PluginDirs, log)
		if err != nil {
			log.WithError(err).Warn("plugin watching disabled")
		} else {
			async.Go(ctx, log, "plugin watcher", func(ctx context.Context) error {
				return watcher.Run(ctx, func(dir string) {
					p, err := ld.Load(dir)
					if err != nil {
						log.WithError(err).Warn("hot-discovered plugin failed to load")
						return
					}
					registerAndEnable(ctx, manager, p, log)
				})
			})
			defer watcher.Close()
		}
	}

	// Periodic state snapshots.
	var scheduler *cron.Cron
	if cfg.SnapshotSchedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.SnapshotSchedule, func() {
			if err := manager.SaveSnapshot(context.Background()); err != nil {
				log.WithError(err).Warn("periodic snapshot failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid snapshot schedule %q: %w", cfg.SnapshotSchedule, err)
		}
		scheduler.Start()
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      observability.NewServer(manager, mon, b, registry, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	async.Go(ctx, log, "http server", func(context.Context) error {
		log.Infof("animusd listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
			os.Exit(1)
		}
		return nil
	})

	sm := observability.NewShutdownManager(log, server, cfg.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		if scheduler != nil {
			scheduler.Stop()
		}
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		// Unload active plugins so cleanup hooks run before the final
		// snapshot.
		for _, v := range manager.List() {
			if v.State.Status == plugin.StatusActive {
				if err := manager.Unload(ctx, v.Descriptor.ID); err != nil {
					log.WithError(err).Warn("unload during shutdown failed")
				}
			}
		}
		return manager.SaveSnapshot(ctx)
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		return st.Close()
	})
	return sm.WaitForShutdown()
}

// ExecuteRequest is the payload for the host's plugin.execute responder.
type ExecuteRequest struct {
	PluginID string
	Input    *plugin.Input
}

func registerAndEnable(ctx context.Context, manager *lifecycle.Manager, p plugin.Plugin, log *logrus.Logger) {
	desc := p.Descriptor()
	if err := manager.Register(ctx, p); err != nil {
		log.WithField("plugin", desc.ID).WithError(err).Warn("plugin registration rejected")
		return
	}
	if desc.AutoEnable {
		if err := manager.Enable(ctx, desc.ID); err != nil {
			log.WithField("plugin", desc.ID).WithError(err).Warn("plugin enable failed")
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return store.NewSQLiteStore(cfg.SQLitePath)
	case config.StoreRedis:
		return store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return store.NewMemoryStore(), nil
	}
}
