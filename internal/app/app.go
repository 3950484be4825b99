package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/db"
	"github.com/yungbote/verbatim-backend/internal/data/repos"
	apphttp "github.com/yungbote/verbatim-backend/internal/http"
	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	Hub      *realtime.Hub
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

// New builds the app from LOG_MODE, CONFIG_PATH and the environment.
func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, log, cfg)
}

func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	dbs, err := db.Open(log, cfg.dbConfig())
	if err != nil {
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := dbs.AutoMigrateAll(); err != nil {
		_ = dbs.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := dbs.DB()

	metrics := observability.NewMetrics()
	clients, err := wireClients(ctx, log, cfg, metrics)
	if err != nil {
		_ = dbs.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}

	var hubOpts []realtime.HubOption
	if clients.Bus != nil {
		hubOpts = append(hubOpts, realtime.WithRelay(clients.Bus))
	}
	hub := realtime.NewHub(log, hubOpts...)

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, hub, metrics)
	if err != nil {
		clients.Close(log)
		_ = hub.Close()
		_ = dbs.Close()
		_ = otelShutdown(ctx)
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, clients, serviceset, hub)
	server := wireServer(log, cfg, handlerset, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Hub:          hub,
		Server:       server,
		Metrics:      metrics,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops: relay forwarding, the worker pool and
// the session gauge collector.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if err := a.Hub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("start realtime hub: %w", err)
	}
	a.Services.Worker.Start(runCtx)
	a.Metrics.StartSessionCollector(runCtx, a.Log, a.DB, a.Cfg.Server.MetricsInterval)
	return nil
}

func (a *App) Run() error {
	a.Log.Info("Listening", "addr", a.Cfg.Server.Addr)
	return a.Server.Run(a.Cfg.Server.Addr)
}

// Shutdown stops accepting requests, cancels in-flight sessions and waits for
// the worker pool to drain.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Services.Worker != nil {
		done := make(chan struct{})
		go func() {
			a.Services.Worker.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("worker drain: %w", ctx.Err()))
		}
	}
	a.Close()
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.Services.Worker != nil {
			a.Services.Worker.Wait()
		}
		if a.Hub != nil {
			if err := a.Hub.Close(); err != nil {
				a.Log.Warn("realtime hub close failed", "error", err)
			}
		}
		a.Clients.Close(a.Log)
		if a.dbService != nil {
			if err := a.dbService.Close(); err != nil {
				a.Log.Warn("database close failed", "error", err)
			}
		}
		if a.otelShutdown != nil {
			if err := a.otelShutdown(context.Background()); err != nil {
				a.Log.Warn("otel shutdown failed", "error", err)
			}
		}
		a.Log.Sync()
	})
}

// RunProject analyzes one project in the calling goroutine and returns the
// final progress snapshot. The app must be built with Pipeline.Synchronous.
func (a *App) RunProject(ctx context.Context, projectID uuid.UUID) (*realtime.ProgressPayload, error) {
	if !a.Cfg.Pipeline.Synchronous {
		return nil, fmt.Errorf("run project: pipeline is not synchronous")
	}
	dbc := dbctx.Context{Ctx: ctx}
	res, err := a.Services.Analysis.StartAnalysis(dbc, projectID)
	if err != nil {
		return nil, err
	}
	return a.Services.Analysis.GetProgress(dbc, res.SessionID)
}
