// Package app wires the components together and owns their lifecycle.
// Initialization order follows the dependency chain: database → sessions →
// bus/registry → api → ws → http server.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jfinfoproyectos/seiac-live/internal/api"
	"github.com/jfinfoproyectos/seiac-live/internal/block"
	"github.com/jfinfoproyectos/seiac-live/internal/bus"
	"github.com/jfinfoproyectos/seiac-live/internal/config"
	"github.com/jfinfoproyectos/seiac-live/internal/database"
	"github.com/jfinfoproyectos/seiac-live/internal/session"
	"github.com/jfinfoproyectos/seiac-live/internal/ws"
)

// Application holds every component of the service.
type Application struct {
	cfg        *config.Config
	log        zerolog.Logger
	db         *database.Manager
	sessions   *session.Manager
	bus        *bus.Bus
	blocks     *block.Registry
	httpServer *http.Server

	started   bool
	sweepDone chan struct{}
	sweepStop chan struct{}
}

// New builds the application. The database is opened and the session cache
// warmed; nothing serves traffic until Start.
func New(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	db, err := database.NewManager(cfg.DatabasePath, log)
	if err != nil {
		return nil, errors.Wrap(err, "initializing database")
	}

	sessions := session.NewManager(db, log)
	if err := sessions.LoadActiveSessions(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	messageBus := bus.New()
	blocks := block.New()

	apiServer := api.NewServer(api.Options{
		Config:   cfg,
		Sessions: sessions,
		Bus:      messageBus,
		Blocks:   blocks,
		DB:       db,
		Logger:   log,
	})
	feedHandler := ws.NewHandler(sessions, messageBus, blocks, cfg.PollInterval, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", feedHandler.HandleFeed)
	mux.Handle("/", apiServer)

	return &Application{
		cfg:      cfg,
		log:      log,
		db:       db,
		sessions: sessions,
		bus:      messageBus,
		blocks:   blocks,
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		sweepDone: make(chan struct{}),
		sweepStop: make(chan struct{}),
	}, nil
}

// Start serves HTTP and, when configured, starts the periodic sweep that
// stands in for the cron trigger the lazy-expiry components expect.
func (a *Application) Start(ctx context.Context) error {
	a.started = true
	go a.sweepLoop()

	a.log.Info().Str("addr", a.httpServer.Addr).Msg("starting seiac-live")

	serverErr := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- errors.Wrap(err, "http server")
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-time.After(100 * time.Millisecond):
		a.log.Info().Msg("seiac-live started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Application) sweepLoop() {
	defer close(a.sweepDone)

	if a.cfg.SweepInterval <= 0 {
		return
	}

	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.bus.CleanExpired()
			purged := a.blocks.All()
			buckets, messages := a.bus.Stats()
			a.log.Debug().
				Int("buckets", buckets).
				Int("messages", messages).
				Int("active_blocks", len(purged)).
				Msg("sweep complete")
		case <-a.sweepStop:
			return
		}
	}
}

// Stop shuts everything down in reverse order: HTTP, sweeper, database.
func (a *Application) Stop(ctx context.Context) error {
	a.log.Info().Msg("shutting down")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("http shutdown")
	}

	if a.started {
		close(a.sweepStop)
		<-a.sweepDone
	}

	if err := a.db.Close(); err != nil {
		return errors.Wrap(err, "closing database")
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (a *Application) Addr() string {
	return a.httpServer.Addr
}
