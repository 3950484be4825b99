package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	"github.com/yungbote/verbatim-backend/internal/jobs/pipeline/analysis"
	"github.com/yungbote/verbatim-backend/internal/jobs/runtime"
	"github.com/yungbote/verbatim-backend/internal/jobs/worker"
	"github.com/yungbote/verbatim-backend/internal/observability"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type Services struct {
	Tracker  services.SessionTracker
	Projects services.ProjectService
	Analysis services.AnalysisService
	Export   services.ExportService
	Search   services.VerbatimSearch
	Worker   *worker.Worker
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	cfg Config,
	set repos.Set,
	clients Clients,
	notifier realtime.Notifier,
	metrics *observability.Metrics,
) (Services, error) {
	log.Info("Wiring services...")
	tracker := services.NewSessionTracker(log, set.Session, set.Project, notifier, cfg.Pipeline.BaseEstimateSeconds)
	search := services.NewVerbatimSearch(log, set.Project, clients.AI, clients.Index)

	pipeline := analysis.New(
		log,
		set,
		clients.AI,
		services.WeightingByName(cfg.Pipeline.Weighting),
		search,
		clients.Tokens,
		analysis.Config{
			MappingBatchSize:      cfg.Pipeline.MappingBatchSize,
			TranscriptConcurrency: cfg.Pipeline.TranscriptConcurrency,
			MinQuoteWords:         cfg.Pipeline.MinQuoteWords,
			MaxVerbatimsPerTopic:  cfg.Pipeline.MaxVerbatimsPerTopic,
			ChunkTokens:           cfg.Pipeline.ChunkTokens,
			Temperature:           cfg.OpenAI.Temperature,
			MaxTokens:             cfg.OpenAI.MaxTokens,
		},
	)
	if metrics != nil {
		pipeline.WithObserver(metrics)
	}
	registry := runtime.NewRegistry()
	if err := registry.Register(pipeline); err != nil {
		return Services{}, fmt.Errorf("register pipeline: %w", err)
	}

	w := worker.NewWorker(db, log, set.Session, set.Project, tracker, registry, worker.Config{
		Concurrency:  cfg.Pipeline.WorkerConcurrency,
		PollInterval: cfg.Pipeline.PollInterval,
		StaleAfter:   cfg.Pipeline.StaleAfter,
		Synchronous:  cfg.Pipeline.Synchronous,
		HandlerType:  pipeline.Type(),
	})

	return Services{
		Tracker:  tracker,
		Projects: services.NewProjectService(db, log, set, clients.Store, clients.Extractor),
		Analysis: services.NewAnalysisService(db, log, set, tracker, w, services.AnalysisOptions{
			RetryPolicy:         cfg.Pipeline.RetryPolicy,
			AllowRetryCompleted: cfg.Pipeline.AllowRetryCompleted,
		}),
		Export: services.NewExportService(log, set),
		Search: search,
		Worker: w,
	}, nil
}
