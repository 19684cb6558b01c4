package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/groupsync-server/internal/config"
	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/service/chat"
	"github.com/vovakirdan/groupsync-server/internal/service/notifications"
	"github.com/vovakirdan/groupsync-server/internal/store"
	"github.com/vovakirdan/groupsync-server/internal/store/mongo"
	"github.com/vovakirdan/groupsync-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/groupsync-server/internal/transport/http"
)

const storeOpenTimeout = 10 * time.Second

// App wires together core, services and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	hub := core.NewHub(logger)
	dispatcher := notifications.New(st, hub, logger, cfg.NotifyConcurrency, cfg.PersistTimeout)
	hub.SetTaskNotifier(dispatcher)

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:           hub,
		Chat:          chat.New(st, hub, logger, cfg.HistoryPageSize),
		Notifications: dispatcher,
		Config:        cfg,
		Logger:        logger,
	})

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
		defer cancel()
		st, err := mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("mongo store initialized")
		return st, nil
	default:
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("sqlite store initialized")
		return st, nil
	}
}

// Run starts the hub and the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by Shutdown; stopping the hub closes them.
		stopHub()
		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
