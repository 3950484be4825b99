package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/verbatim-backend/internal/http/handlers"
	httpMW "github.com/yungbote/verbatim-backend/internal/http/middleware"
	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	Metrics        *observability.Metrics
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	ProjectHandler  *httpH.ProjectHandler
	AnalysisHandler *httpH.AnalysisHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Projects and uploads
	if cfg.ProjectHandler != nil {
		api.POST("/projects", cfg.ProjectHandler.CreateProject)
		api.GET("/projects", cfg.ProjectHandler.ListProjects)
		api.GET("/projects/:id", cfg.ProjectHandler.GetProject)
		api.DELETE("/projects/:id", cfg.ProjectHandler.DeleteProject)
		api.PUT("/projects/:id/configuration", cfg.ProjectHandler.Configure)
		api.POST("/projects/:id/guide", cfg.ProjectHandler.UploadGuide)
		api.GET("/projects/:id/guide", cfg.ProjectHandler.GetGuide)
		api.POST("/projects/:id/transcripts", cfg.ProjectHandler.UploadTranscripts)
		api.GET("/projects/:id/transcripts", cfg.ProjectHandler.ListTranscripts)
		api.GET("/projects/:id/verbatims/similar", cfg.ProjectHandler.SimilarVerbatims)
	}

	// Analysis sessions
	if cfg.AnalysisHandler != nil {
		api.POST("/projects/:id/analysis", cfg.AnalysisHandler.StartAnalysis)
		api.GET("/projects/:id/sessions", cfg.AnalysisHandler.ListSessions)
		api.GET("/sessions/:id", cfg.AnalysisHandler.GetProgress)
		api.GET("/sessions/:id/results", cfg.AnalysisHandler.GetResults)
		api.POST("/sessions/:id/retry", cfg.AnalysisHandler.RetryAnalysis)
		api.POST("/sessions/:id/cancel", cfg.AnalysisHandler.CancelAnalysis)
		api.GET("/sessions/:id/export", cfg.AnalysisHandler.Export)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/sessions/:id/stream", cfg.RealtimeHandler.StreamSession)
		api.GET("/projects/:id/stream", cfg.RealtimeHandler.StreamProject)
	}

	return r
}
