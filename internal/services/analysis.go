package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

const (
	RetryPolicyAppend  = "append"
	RetryPolicyReplace = "replace"

	CancelledMessage = "cancelled"
)

// NormalizeRetryPolicy maps config input onto a known policy, defaulting to append.
func NormalizeRetryPolicy(p string) string {
	if strings.EqualFold(strings.TrimSpace(p), RetryPolicyReplace) {
		return RetryPolicyReplace
	}
	return RetryPolicyAppend
}

// Dispatcher hands a created session to whatever runs the pipeline: the
// worker pool, or an inline runner in synchronous mode.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID uuid.UUID) error
	// Cancel stops an in-flight run owned by this process. It reports whether
	// a run was found.
	Cancel(sessionID uuid.UUID) bool
}

type StartResult struct {
	SessionID uuid.UUID `json:"sessionId"`
	ProjectID uuid.UUID `json:"projectId"`
	Status    string    `json:"status"`
}

type AnalysisOptions struct {
	RetryPolicy         string
	AllowRetryCompleted bool
}

type AnalysisService interface {
	StartAnalysis(dbc dbctx.Context, projectID uuid.UUID) (*StartResult, error)
	GetProgress(dbc dbctx.Context, sessionID uuid.UUID) (*realtime.ProgressPayload, error)
	GetResults(dbc dbctx.Context, sessionID uuid.UUID, resultType string) ([]*types.AnalysisResult, error)
	RetryAnalysis(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error)
	CancelAnalysis(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error)
	ListSessions(dbc dbctx.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error)
}

type analysisService struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    repos.Set
	tracker  SessionTracker
	dispatch Dispatcher
	opts     AnalysisOptions
}

func NewAnalysisService(
	db *gorm.DB,
	baseLog *logger.Logger,
	set repos.Set,
	tracker SessionTracker,
	dispatch Dispatcher,
	opts AnalysisOptions,
) AnalysisService {
	opts.RetryPolicy = NormalizeRetryPolicy(opts.RetryPolicy)
	return &analysisService{
		db:       db,
		log:      baseLog.With("service", "AnalysisService"),
		repos:    set,
		tracker:  tracker,
		dispatch: dispatch,
		opts:     opts,
	}
}

// CheckPreconditions reports what a project lacks before analysis can start.
func CheckPreconditions(dbc dbctx.Context, set repos.Set, projectID uuid.UUID) error {
	project, err := set.Project.GetByID(dbc, projectID)
	if err != nil {
		return apierr.Persist("load project", err)
	}
	if project == nil {
		return apierr.NotFound("project", projectID)
	}
	var missing []string
	guide, err := set.Guide.GetByProjectID(dbc, projectID)
	if err != nil {
		return apierr.Persist("load guide", err)
	}
	if guide == nil || strings.TrimSpace(guide.Content) == "" {
		missing = append(missing, "discussion_guide")
	}
	n, err := set.Transcript.CountByProjectID(dbc, projectID)
	if err != nil {
		return apierr.Persist("count transcripts", err)
	}
	if n == 0 {
		missing = append(missing, "transcripts")
	}
	if len(missing) > 0 {
		return &apierr.PreconditionError{Missing: missing}
	}
	return nil
}

func (s *analysisService) StartAnalysis(dbc dbctx.Context, projectID uuid.UUID) (*StartResult, error) {
	if err := CheckPreconditions(dbc, s.repos, projectID); err != nil {
		return nil, err
	}
	session, err := s.tracker.CreateSession(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Project.UpdateStatus(dbc, projectID, research.ProjectStatusProcessing); err != nil {
		return nil, apierr.Persist("update project status", err)
	}
	s.log.Info("Analysis started", "project_id", projectID, "session_id", session.ID, "trace_id", traceID(dbc))
	if err := s.dispatch.Dispatch(ctxutil.Detach(dbc.Ctx), session.ID); err != nil {
		return nil, fmt.Errorf("dispatch session %s: %w", session.ID, err)
	}
	return &StartResult{SessionID: session.ID, ProjectID: projectID, Status: session.Status}, nil
}

func (s *analysisService) GetProgress(dbc dbctx.Context, sessionID uuid.UUID) (*realtime.ProgressPayload, error) {
	session, err := s.loadSession(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	p := PayloadFromSession(session)
	return &p, nil
}

// GetResults returns every result row the session produced, oldest first. An
// empty resultType returns all types.
func (s *analysisService) GetResults(dbc dbctx.Context, sessionID uuid.UUID, resultType string) ([]*types.AnalysisResult, error) {
	resultType = strings.TrimSpace(resultType)
	if resultType != "" && !domainAnalysis.ValidResultType(resultType) {
		return nil, apierr.New(http.StatusBadRequest, "invalid_result_type", fmt.Errorf("unknown result type %q", resultType))
	}
	if _, err := s.loadSession(dbc, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.repos.Result.ListBySessionID(dbc, sessionID, resultType)
	if err != nil {
		return nil, apierr.Persist("list results", err)
	}
	return rows, nil
}

func (s *analysisService) RetryAnalysis(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	session, err := s.loadSession(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case domainAnalysis.SessionStatusFailed:
	case domainAnalysis.SessionStatusCompleted:
		if !s.opts.AllowRetryCompleted {
			return nil, fmt.Errorf("retry completed session %s: %w", sessionID, apierr.ErrInvalidState)
		}
	default:
		return nil, fmt.Errorf("retry session %s in status %s: %w", sessionID, session.Status, apierr.ErrInvalidState)
	}
	if err := CheckPreconditions(dbc, s.repos, session.ProjectID); err != nil {
		return nil, err
	}

	// The active check, artifact clearing, project status and the reset CAS
	// commit together, so a rejected retry leaves the project untouched.
	var reset *types.AnalysisSession
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	err = transaction.WithContext(ctxutil.Default(dbc.Ctx)).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		active, err := s.repos.Session.GetActiveByProjectID(inner, session.ProjectID)
		if err != nil {
			return apierr.Persist("load active session", err)
		}
		if active != nil {
			return fmt.Errorf("retry session %s: project %s: %w", sessionID, session.ProjectID, apierr.ErrActiveSession)
		}
		if s.opts.RetryPolicy == RetryPolicyReplace {
			if err := s.clearArtifacts(inner, session.ProjectID); err != nil {
				return err
			}
		}
		if err := s.repos.Project.UpdateStatus(inner, session.ProjectID, research.ProjectStatusProcessing); err != nil {
			return apierr.Persist("update project status", err)
		}
		reset, err = s.tracker.Reset(inner, sessionID, StepRestarting)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Analysis retry scheduled",
		"session_id", sessionID,
		"project_id", session.ProjectID,
		"policy", s.opts.RetryPolicy,
		"attempts", reset.Attempts,
	)
	if err := s.dispatch.Dispatch(ctxutil.Detach(dbc.Ctx), sessionID); err != nil {
		return nil, fmt.Errorf("dispatch session %s: %w", sessionID, err)
	}
	return reset, nil
}

// clearArtifacts drops every derived row for the project. Callers run it
// inside the retry transaction. Analysis results are kept.
func (s *analysisService) clearArtifacts(dbc dbctx.Context, projectID uuid.UUID) error {
	if err := s.repos.StrategicAnalysis.DeleteByProjectID(dbc, projectID); err != nil {
		return apierr.Persist("clear strategic analyses", err)
	}
	if err := s.repos.EmergentTopic.DeleteByProjectID(dbc, projectID); err != nil {
		return apierr.Persist("clear emergent topics", err)
	}
	if err := s.repos.QuestionMapping.DeleteByProjectID(dbc, projectID); err != nil {
		return apierr.Persist("clear question mappings", err)
	}
	if err := s.repos.Verbatim.DeleteByProjectID(dbc, projectID); err != nil {
		return apierr.Persist("clear verbatims", err)
	}
	if err := s.repos.Guide.ClearObjectives(dbc, projectID); err != nil {
		return apierr.Persist("clear guide objectives", err)
	}
	s.log.Info("Cleared analysis artifacts before retry", "project_id", projectID)
	return nil
}

// CancelAnalysis marks the session failed with "cancelled" and stops the run
// if this process owns it. The run's own cancellation path then sees a
// terminal session and exits quietly.
func (s *analysisService) CancelAnalysis(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	session, err := s.loadSession(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		return nil, fmt.Errorf("cancel session %s in status %s: %w", sessionID, session.Status, apierr.ErrInvalidState)
	}
	stopped := s.dispatch.Cancel(sessionID)
	failed, err := s.tracker.Fail(dbc, sessionID, CancelledMessage)
	if err != nil && !errors.Is(err, apierr.ErrInvalidState) {
		return nil, err
	}
	if err := s.repos.Project.UpdateStatus(dbc, session.ProjectID, research.ProjectStatusFailed); err != nil {
		return nil, apierr.Persist("update project status", err)
	}
	s.log.Info("Analysis cancelled", "session_id", sessionID, "in_process", stopped)
	return failed, nil
}

func (s *analysisService) ListSessions(dbc dbctx.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error) {
	project, err := s.repos.Project.GetByID(dbc, projectID)
	if err != nil {
		return nil, apierr.Persist("load project", err)
	}
	if project == nil {
		return nil, apierr.NotFound("project", projectID)
	}
	rows, err := s.repos.Session.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, apierr.Persist("list sessions", err)
	}
	return rows, nil
}

func (s *analysisService) loadSession(dbc dbctx.Context, sessionID uuid.UUID) (*types.AnalysisSession, error) {
	session, err := s.tracker.GetSession(dbc, sessionID)
	if err != nil {
		return nil, apierr.Persist("load session", err)
	}
	if session == nil {
		return nil, apierr.NotFound("analysis session", sessionID)
	}
	return session, nil
}
