package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/services"
)

/*
Context is the execution handle for one analysis run.
It wraps:
  - the run's context.Context (cancelled by CancelAnalysis or shutdown),
  - the claimed session row,
  - the tracker, which is the only sanctioned writer of session state.

Pipelines never touch the session row directly. Progress, Fail and Succeed
keep the session and the project status in step.
*/
type Context struct {
	Ctx      context.Context
	DB       *gorm.DB
	Session  *types.AnalysisSession
	Tracker  services.SessionTracker
	Projects repos.ProjectRepo
	Log      *logger.Logger

	finished bool
}

func NewContext(ctx context.Context, db *gorm.DB, session *types.AnalysisSession, tracker services.SessionTracker, projects repos.ProjectRepo, baseLog *logger.Logger) *Context {
	return &Context{
		Ctx:      ctx,
		DB:       db,
		Session:  session,
		Tracker:  tracker,
		Projects: projects,
		Log:      baseLog.With("session_id", session.ID, "project_id", session.ProjectID),
	}
}

func (c *Context) SessionID() uuid.UUID { return c.Session.ID }

func (c *Context) ProjectID() uuid.UUID { return c.Session.ProjectID }

// DBC is the store handle for pipeline reads and writes under the run context.
func (c *Context) DBC() dbctx.Context { return dbctx.Context{Ctx: c.Ctx} }

// Progress records a non-terminal update. It returns apierr.ErrCancelled when
// the session was moved to a terminal state behind the run's back, which is
// how a cancel from another process reaches this one.
func (c *Context) Progress(pct int, step string) error {
	if err := c.Ctx.Err(); err != nil {
		return err
	}
	ok, err := c.Tracker.UpdateProgress(c.DBC(), c.Session.ID, pct, step, nil)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s is no longer active: %w", c.Session.ID, apierr.ErrCancelled)
	}
	c.Session.Progress = pct
	c.Session.CurrentStep = step
	return nil
}

// Fail moves the session to failed and the project to failed. A cancelled
// run is recorded with the message "cancelled". Writes use a detached context
// so they land even when the run context is already done.
func (c *Context) Fail(stage string, cause error) {
	if c == nil || c.finished {
		return
	}
	c.finished = true
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, apierr.ErrCancelled) {
		msg = services.CancelledMessage
	}
	dbc := dbctx.Context{Ctx: ctxutil.Detach(c.Ctx)}
	if _, err := c.Tracker.Fail(dbc, c.Session.ID, msg); err != nil && !errors.Is(err, apierr.ErrInvalidState) {
		c.Log.Error("Failed to mark session failed", "stage", stage, "error", err)
	}
	if err := c.Projects.UpdateStatus(dbc, c.Session.ProjectID, research.ProjectStatusFailed); err != nil {
		c.Log.Error("Failed to mark project failed", "error", err)
	}
	c.Log.Warn("Analysis run failed", "stage", stage, "error", msg)
}

// Succeed completes the session and the project.
func (c *Context) Succeed() error {
	if c.finished {
		return nil
	}
	if err := c.Ctx.Err(); err != nil {
		return err
	}
	session, err := c.Tracker.Complete(c.DBC(), c.Session.ID)
	if err != nil {
		if errors.Is(err, apierr.ErrInvalidState) {
			return fmt.Errorf("complete session %s: %w", c.Session.ID, apierr.ErrCancelled)
		}
		return err
	}
	c.finished = true
	c.Session = session
	// The session is already committed as completed; the project must follow
	// even if the run context ends now.
	dbc := dbctx.Context{Ctx: ctxutil.Detach(c.Ctx)}
	if err := c.Projects.UpdateStatus(dbc, c.Session.ProjectID, research.ProjectStatusCompleted); err != nil {
		c.Log.Error("Failed to mark project completed", "error", err)
		return apierr.Persist("update project status", err)
	}
	return nil
}

func (c *Context) Finished() bool { return c.finished }
