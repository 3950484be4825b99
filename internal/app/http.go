package app

import (
	"context"

	"gorm.io/gorm"

	apphttp "github.com/yungbote/verbatim-backend/internal/http"
	httpH "github.com/yungbote/verbatim-backend/internal/http/handlers"
	httpMW "github.com/yungbote/verbatim-backend/internal/http/middleware"
	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Project  *httpH.ProjectHandler
	Analysis *httpH.AnalysisHandler
	Realtime *httpH.RealtimeHandler
}

type dbPinger struct{ db *gorm.DB }

func (p dbPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func wireHandlers(log *logger.Logger, db *gorm.DB, clients Clients, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	deps := map[string]httpH.Pinger{"database": dbPinger{db: db}}
	if clients.Bus != nil {
		deps["redis"] = clients.Bus
	}
	return Handlers{
		Health:   httpH.NewHealthHandler(deps),
		Project:  httpH.NewProjectHandler(log, services.Projects, services.Search),
		Analysis: httpH.NewAnalysisHandler(log, services.Analysis, services.Export),
		Realtime: httpH.NewRealtimeHandler(log, hub, services.Analysis),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *apphttp.Server {
	var auth *httpMW.AuthMiddleware
	if cfg.Auth.JWTSecretKey != "" {
		auth = httpMW.NewAuthMiddleware(log, cfg.Auth.JWTSecretKey)
	} else {
		log.Warn("JWT_SECRET_KEY not set; API routes are open")
	}
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:             log,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Metrics:         metrics,
		AuthMiddleware:  auth,
		HealthHandler:   handlers.Health,
		ProjectHandler:  handlers.Project,
		AnalysisHandler: handlers.Analysis,
		RealtimeHandler: handlers.Realtime,
	})
}
