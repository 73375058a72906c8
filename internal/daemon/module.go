// Package daemon composes the application: provider adapter, chat store,
// ingestion pipeline, fan-out hub, and the HTTP/websocket server.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"wachat/internal/bus"
	"wachat/internal/config"
	"wachat/internal/hub"
	"wachat/internal/ingest"
	"wachat/internal/lock"
	"wachat/internal/logging"
	"wachat/internal/send"
	"wachat/internal/server"
	"wachat/internal/session"
	"wachat/internal/status"
	"wachat/internal/store"
	"wachat/internal/wa"
)

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideDB,
			provideStore,
			provideAdapter,
			providePipeline,
			provideGateway,
			provideHub,
			provideHandlers,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger() (*zap.Logger, error) {
	return logging.New(session.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", session.Dir()))
	l, err := lock.Acquire(session.Dir())
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideDB(logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ChatDBPath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("chat db opened", zap.String("path", dbPath))
	return db, nil
}

func provideStore(db *store.DB, logger *zap.Logger) (*store.Store, error) {
	s := store.New(store.NewSQLitePersister(db), logger)
	if err := s.Load(); err != nil {
		return nil, err
	}
	logger.Info("chat store loaded", zap.Int("chats", len(s.List())))
	return s, nil
}

func provideAdapter(b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	return wa.NewAdapter(context.Background(), session.ProviderDBPath(), b, logger)
}

func providePipeline(s *store.Store, b *bus.Bus, logger *zap.Logger) *ingest.Pipeline {
	return ingest.New(s, b, logger)
}

func provideGateway(cfg *config.Config, adapter *wa.Adapter, machine *status.Machine, pipeline *ingest.Pipeline, logger *zap.Logger) *send.Gateway {
	timeout := time.Duration(cfg.SendTimeoutSecs) * time.Second
	return send.New(adapter, machine, pipeline, timeout, logger)
}

func provideHub(cfg *config.Config, s *store.Store, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(s, b, cfg.SessionQueueSize, logger)
}

func provideHandlers(s *store.Store, p *ingest.Pipeline, g *send.Gateway, h *hub.Hub, adapter *wa.Adapter, logger *zap.Logger) *server.Handlers {
	return server.NewHandlers(s, p, g, h, adapter, logger)
}

func provideServer(cfg *config.Config, h *server.Handlers, logger *zap.Logger) *server.Server {
	return server.NewServer(cfg.ListenAddr, cfg.AllowedOrigins, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *server.Server, lk *lock.Lock, db *store.DB, adapter *wa.Adapter, pipeline *ingest.Pipeline, h *hub.Hub, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Consumers first, so provider events published during connect
			// are not lost.
			pipeline.Start(context.Background())
			h.Run(context.Background())

			handler := wa.NewEventHandler(b, machine, logger)
			adapter.RegisterEventHandler(handler.Handle)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			if adapter.IsLoggedIn() {
				_ = machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, starting QR pairing")
				_ = machine.Transition(status.AuthRequired)
				go func() {
					if err := adapter.StartQRAuth(context.Background()); err != nil {
						logger.Error("QR pairing start failed", zap.Error(err))
						_ = machine.Transition(status.Error)
					}
				}()
			}

			return nil
		},
		OnStop: func(ctx context.Context) error {
			adapter.Disconnect()
			srv.Stop(ctx)
			h.Stop()
			pipeline.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing chat db", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
