package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/jobs/runtime"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/services"
)

const DefaultHandlerType = "analysis"

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
	// Synchronous runs the pipeline inside Dispatch instead of the pool.
	Synchronous bool
	HandlerType string
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HandlerType == "" {
		c.HandlerType = DefaultHandlerType
	}
	return c
}

var _ services.Dispatcher = (*Worker)(nil)

// Worker claims created sessions and runs them through the registered
// handler. It also owns the cancel functions of the runs in this process.
type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions repos.AnalysisSessionRepo
	projects repos.ProjectRepo
	tracker  services.SessionTracker
	registry *runtime.Registry
	cfg      Config

	wake chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
}

func NewWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions repos.AnalysisSessionRepo,
	projects repos.ProjectRepo,
	tracker services.SessionTracker,
	registry *runtime.Registry,
	cfg Config,
) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "AnalysisWorker"),
		sessions: sessions,
		projects: projects,
		tracker:  tracker,
		registry: registry,
		cfg:      cfg.withDefaults(),
		wake:     make(chan struct{}, 1),
		running:  map[uuid.UUID]context.CancelFunc{},
	}
}

// Start launches the poll loops. Runs inherit ctx, so cancelling it stops
// in-flight runs as well.
func (w *Worker) Start(ctx context.Context) {
	if w.cfg.Synchronous {
		w.log.Info("Worker in synchronous mode; pool not started")
		return
	}
	w.log.Info("Starting analysis worker pool", "concurrency", w.cfg.Concurrency)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}()
	}
}

// Wait blocks until every loop started by Start has returned.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) Dispatch(ctx context.Context, sessionID uuid.UUID) error {
	if !w.cfg.Synchronous {
		select {
		case w.wake <- struct{}{}:
		default:
		}
		return nil
	}
	return w.RunSession(ctx, sessionID)
}

func (w *Worker) Cancel(sessionID uuid.UUID) bool {
	w.mu.Lock()
	cancel, ok := w.running[sessionID]
	w.mu.Unlock()
	if ok {
		cancel()
		w.log.Info("Cancelled in-flight run", "session_id", sessionID)
	}
	return ok
}

// RunSession claims one created session by id and runs it to completion on
// the caller's goroutine.
func (w *Worker) RunSession(ctx context.Context, sessionID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now()
	ok, err := w.sessions.UpdateFieldsIfStatus(dbc, sessionID, []string{domainAnalysis.SessionStatusCreated}, map[string]interface{}{
		"status":     domainAnalysis.SessionStatusProcessing,
		"started_at": now,
		"updated_at": now,
	})
	if err != nil {
		return fmt.Errorf("claim session %s: %w", sessionID, err)
	}
	if !ok {
		w.log.Warn("Session not claimable; skipping run", "session_id", sessionID)
		return nil
	}
	session, err := w.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return fmt.Errorf("session %s vanished after claim", sessionID)
	}
	w.execute(ctx, 0, session)
	return nil
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
		case <-w.wake:
		}
		for ctx.Err() == nil {
			session, err := w.sessions.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.cfg.StaleAfter)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
				}
				break
			}
			if session == nil {
				break
			}
			w.execute(ctx, workerID, session)
		}
	}
}

func (w *Worker) execute(ctx context.Context, workerID int, session *domainAnalysis.AnalysisSession) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.track(session.ID, cancel)
	defer w.untrack(session.ID)

	jc := runtime.NewContext(runCtx, w.db, session, w.tracker, w.projects, w.log)
	h, err := w.registry.Resolve(w.cfg.HandlerType)
	if err != nil {
		w.log.Warn("No handler registered", "worker_id", workerID, "handler_type", w.cfg.HandlerType, "session_id", session.ID)
		jc.Fail("dispatch", err)
		return
	}

	stop := w.heartbeat(runCtx, session.ID)
	defer stop()

	start := time.Now()
	w.log.Info("Analysis run started", "worker_id", workerID, "session_id", session.ID, "project_id", session.ProjectID)
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Handler panic", "worker_id", workerID, "session_id", session.ID, "panic", r)
				jc.Fail("panic", errFromRecover(r))
			}
		}()
		if runErr := h.Run(jc); runErr != nil {
			jc.Fail("run", runErr)
		}
	}()
	if !jc.Finished() {
		jc.Fail("run", errors.New("handler returned without finishing the session"))
	}
	w.log.Info("Analysis run finished", "worker_id", workerID, "session_id", session.ID, "duration", time.Since(start).String())
}

// heartbeat bumps updated_at so a long stage is not mistaken for a dead run.
func (w *Worker) heartbeat(ctx context.Context, id uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.sessions.Heartbeat(dbctx.Context{Ctx: ctx}, id); err != nil && ctx.Err() == nil {
					w.log.Warn("Heartbeat failed", "session_id", id, "error", err)
				}
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (w *Worker) track(id uuid.UUID, cancel context.CancelFunc) {
	w.mu.Lock()
	w.running[id] = cancel
	w.mu.Unlock()
}

func (w *Worker) untrack(id uuid.UUID) {
	w.mu.Lock()
	delete(w.running, id)
	w.mu.Unlock()
}

// Running reports how many runs this process currently owns.
func (w *Worker) Running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.running)
}

func errFromRecover(v any) error { return &panicError{Val: v} }

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
