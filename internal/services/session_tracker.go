package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

const DefaultBaseEstimateSeconds = 300

// SessionTracker owns every write to an analysis session row. Each mutation is
// published to the notifier after it is persisted.
type SessionTracker interface {
	CreateSession(dbc dbctx.Context, projectID uuid.UUID) (*types.AnalysisSession, error)
	UpdateProgress(dbc dbctx.Context, sessionID uuid.UUID, progress int, stepLabel string, estimatedRemaining *int) (bool, error)
	Complete(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error)
	Fail(dbc dbctx.Context, sessionID uuid.UUID, message string) (*types.AnalysisSession, error)
	Reset(dbc dbctx.Context, sessionID uuid.UUID, stepLabel string) (*types.AnalysisSession, error)
	GetSession(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error)
	EstimateRemaining(progress int) int
}

type sessionTracker struct {
	log          *logger.Logger
	sessions     repos.AnalysisSessionRepo
	projects     repos.ProjectRepo
	notify       realtime.Notifier
	baseEstimate int
}

func NewSessionTracker(
	baseLog *logger.Logger,
	sessions repos.AnalysisSessionRepo,
	projects repos.ProjectRepo,
	notify realtime.Notifier,
	baseEstimateSeconds int,
) SessionTracker {
	if baseEstimateSeconds <= 0 {
		baseEstimateSeconds = DefaultBaseEstimateSeconds
	}
	return &sessionTracker{
		log:          baseLog.With("service", "SessionTracker"),
		sessions:     sessions,
		projects:     projects,
		notify:       notify,
		baseEstimate: baseEstimateSeconds,
	}
}

func (t *sessionTracker) EstimateRemaining(progress int) int {
	return EstimateRemaining(progress, t.baseEstimate)
}

func (t *sessionTracker) CreateSession(dbc dbctx.Context, projectID uuid.UUID) (*types.AnalysisSession, error) {
	project, err := t.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, apierr.Persist("load project", err)
	}
	if project == nil {
		return nil, apierr.NotFound("project", projectID)
	}
	est := t.baseEstimate
	session, err := t.sessions.Create(dbc, &types.AnalysisSession{
		ProjectID:                 projectID,
		Status:                    domainAnalysis.SessionStatusCreated,
		Progress:                  0,
		CurrentStep:               StepQueued,
		EstimatedRemainingSeconds: &est,
	})
	if err != nil {
		return nil, err
	}
	t.log.Info("Analysis session created", "session_id", session.ID, "project_id", projectID, "trace_id", traceID(dbc))
	t.publish(dbc, session)
	return session, nil
}

func (t *sessionTracker) UpdateProgress(dbc dbctx.Context, sessionID uuid.UUID, progress int, stepLabel string, estimatedRemaining *int) (bool, error) {
	current, err := t.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return false, apierr.Persist("load session", err)
	}
	if current == nil {
		return false, apierr.NotFound("analysis session", sessionID)
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if progress < current.Progress {
		t.log.Warn("Progress regression", "session_id", sessionID, "from", current.Progress, "to", progress)
	}
	est := t.EstimateRemaining(progress)
	if estimatedRemaining != nil {
		est = *estimatedRemaining
	}

	now := time.Now()
	updates := map[string]interface{}{
		"progress":                    progress,
		"current_step":                stepLabel,
		"estimated_remaining_seconds": est,
		"updated_at":                  now,
	}
	if progress < 100 {
		updates["status"] = domainAnalysis.SessionStatusProcessing
		if current.StartedAt == nil {
			updates["started_at"] = now
		}
	}
	ok, err := t.sessions.UpdateFieldsUnlessStatus(dbc, sessionID, domainAnalysis.TerminalSessionStatuses, updates)
	if err != nil {
		return false, apierr.Persist("update session progress", err)
	}
	if !ok {
		t.log.Debug("Progress update ignored on terminal session", "session_id", sessionID, "status", current.Status)
		return false, nil
	}

	current.Progress = progress
	current.CurrentStep = stepLabel
	current.EstimatedRemainingSeconds = &est
	current.UpdatedAt = now
	if progress < 100 {
		current.Status = domainAnalysis.SessionStatusProcessing
		if current.StartedAt == nil {
			current.StartedAt = &now
		}
	}
	t.publish(dbc, current)
	return true, nil
}

func (t *sessionTracker) Complete(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	now := time.Now()
	zero := 0
	ok, err := t.sessions.UpdateFieldsIfStatus(dbc, sessionID, domainAnalysis.ActiveSessionStatuses, map[string]interface{}{
		"status":                      domainAnalysis.SessionStatusCompleted,
		"progress":                    100,
		"current_step":                StepCompleted,
		"estimated_remaining_seconds": zero,
		"completed_at":                now,
		"updated_at":                  now,
	})
	if err != nil {
		return nil, apierr.Persist("complete session", err)
	}
	session, err := t.mustGet(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if session.Status == domainAnalysis.SessionStatusCompleted {
			return session, nil
		}
		return session, fmt.Errorf("complete session %s in status %s: %w", sessionID, session.Status, apierr.ErrInvalidState)
	}
	t.log.Info("Analysis session completed", "session_id", sessionID, "project_id", session.ProjectID)
	t.publish(dbc, session)
	return session, nil
}

// Fail is a no-op on a session that already failed and an ErrInvalidState on a
// completed one. Progress is left where the run stopped.
func (t *sessionTracker) Fail(dbc dbctx.Context, sessionID uuid.UUID, message string) (*types.AnalysisSession, error) {
	now := time.Now()
	ok, err := t.sessions.UpdateFieldsIfStatus(dbc, sessionID, domainAnalysis.ActiveSessionStatuses, map[string]interface{}{
		"status":        domainAnalysis.SessionStatusFailed,
		"error_message": message,
		"completed_at":  now,
		"updated_at":    now,
	})
	if err != nil {
		return nil, apierr.Persist("fail session", err)
	}
	session, err := t.mustGet(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if session.Status == domainAnalysis.SessionStatusFailed {
			return session, nil
		}
		return session, fmt.Errorf("fail session %s in status %s: %w", sessionID, session.Status, apierr.ErrInvalidState)
	}
	t.log.Warn("Analysis session failed", "session_id", sessionID, "project_id", session.ProjectID, "error", message)
	t.publish(dbc, session)
	return session, nil
}

// Reset reactivates a terminal session for a retry. The active-session check
// runs first; the partial unique index catches the race.
func (t *sessionTracker) Reset(dbc dbctx.Context, sessionID uuid.UUID, stepLabel string) (*types.AnalysisSession, error) {
	current, err := t.mustGet(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if !current.Terminal() {
		return current, fmt.Errorf("reset session %s in status %s: %w", sessionID, current.Status, apierr.ErrInvalidState)
	}
	active, err := t.sessions.GetActiveByProjectID(dbc, current.ProjectID)
	if err != nil {
		return nil, apierr.Persist("load active session", err)
	}
	if active != nil {
		return nil, fmt.Errorf("project %s: %w", current.ProjectID, apierr.ErrActiveSession)
	}
	now := time.Now()
	est := t.baseEstimate
	ok, err := t.sessions.UpdateFieldsIfStatus(dbc, sessionID, domainAnalysis.TerminalSessionStatuses, map[string]interface{}{
		"status":                      domainAnalysis.SessionStatusCreated,
		"progress":                    0,
		"current_step":                stepLabel,
		"estimated_remaining_seconds": est,
		"error_message":               "",
		"started_at":                  nil,
		"completed_at":                nil,
		"attempts":                    gorm.Expr("attempts + 1"),
		"updated_at":                  now,
	})
	if err != nil {
		return nil, err
	}
	session, err := t.mustGet(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return session, fmt.Errorf("reset session %s in status %s: %w", sessionID, session.Status, apierr.ErrInvalidState)
	}
	t.log.Info("Analysis session reset", "session_id", sessionID, "attempts", session.Attempts)
	t.publish(dbc, session)
	return session, nil
}

func (t *sessionTracker) GetSession(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	return t.sessions.GetByID(dbc, sessionID)
}

func (t *sessionTracker) mustGet(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	session, err := t.sessions.GetByID(dbc, sessionID)
	if err != nil {
		return nil, apierr.Persist("load session", err)
	}
	if session == nil {
		return nil, apierr.NotFound("analysis session", sessionID)
	}
	return session, nil
}

func (t *sessionTracker) publish(dbc dbctx.Context, s *types.AnalysisSession) {
	if t.notify == nil || s == nil {
		return
	}
	t.notify.Publish(ctxutil.Default(dbc.Ctx), PayloadFromSession(s))
}

// PayloadFromSession normalizes a session row into the notifier payload.
func PayloadFromSession(s *types.AnalysisSession) realtime.ProgressPayload {
	p := realtime.ProgressPayload{
		SessionID:   s.ID,
		ProjectID:   s.ProjectID,
		Status:      s.Status,
		Progress:    s.Progress,
		CurrentStep: s.CurrentStep,
		Error:       s.ErrorMessage,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.EstimatedRemainingSeconds != nil {
		v := *s.EstimatedRemainingSeconds
		p.EstimatedRemaining = &v
	}
	return p
}

func traceID(dbc dbctx.Context) string {
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		return td.TraceID
	}
	return ""
}
