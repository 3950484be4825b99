package services

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

func TestSessionTrackerLifecycle(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "lifecycle")

	s, err := f.tracker.CreateSession(f.dbc, p.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCreated, s.Status)
	require.Equal(t, StepQueued, s.CurrentStep)
	require.NotNil(t, s.EstimatedRemainingSeconds)
	require.Equal(t, 300, *s.EstimatedRemainingSeconds)

	ok, err := f.tracker.UpdateProgress(f.dbc, s.ID, 50, "Mapping", nil)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := f.tracker.GetSession(f.dbc, s.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusProcessing, got.Status)
	require.Equal(t, 50, got.Progress)
	require.Equal(t, 150, *got.EstimatedRemainingSeconds)
	require.NotNil(t, got.StartedAt)
	require.Nil(t, got.CompletedAt)

	done, err := f.tracker.Complete(f.dbc, s.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCompleted, done.Status)
	require.Equal(t, 100, done.Progress)
	require.Equal(t, StepCompleted, done.CurrentStep)
	require.Equal(t, 0, *done.EstimatedRemainingSeconds)
	require.NotNil(t, done.CompletedAt)

	require.Equal(t, []int{0, 50, 100}, f.rec.Progress(s.ID))
}

func TestSessionTrackerIgnoresUpdatesAfterTerminal(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "terminal")
	s, err := f.tracker.CreateSession(f.dbc, p.ID)
	require.NoError(t, err)

	_, err = f.tracker.UpdateProgress(f.dbc, s.ID, 25, "Extracting", nil)
	require.NoError(t, err)
	failed, err := f.tracker.Fail(f.dbc, s.ID, "boom")
	require.NoError(t, err)
	require.Equal(t, 25, failed.Progress)
	require.Equal(t, "boom", failed.ErrorMessage)
	require.NotNil(t, failed.CompletedAt)

	ok, err := f.tracker.UpdateProgress(f.dbc, s.ID, 50, "Mapping", nil)
	require.NoError(t, err)
	require.False(t, ok)

	again, err := f.tracker.Fail(f.dbc, s.ID, "second")
	require.NoError(t, err)
	require.Equal(t, "boom", again.ErrorMessage)

	_, err = f.tracker.Complete(f.dbc, s.ID)
	require.True(t, errors.Is(err, apierr.ErrInvalidState), "err=%v", err)

	got, err := f.tracker.GetSession(f.dbc, s.ID)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusFailed, got.Status)
	require.Equal(t, 25, got.Progress)
}

func TestSessionTrackerResetAndActiveConflict(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "reset")
	s, err := f.tracker.CreateSession(f.dbc, p.ID)
	require.NoError(t, err)

	_, err = f.tracker.CreateSession(f.dbc, p.ID)
	require.True(t, errors.Is(err, apierr.ErrActiveSession), "err=%v", err)

	_, err = f.tracker.Reset(f.dbc, s.ID, StepRestarting)
	require.True(t, errors.Is(err, apierr.ErrInvalidState), "reset of active session: err=%v", err)

	_, err = f.tracker.Fail(f.dbc, s.ID, "boom")
	require.NoError(t, err)

	other, err := f.tracker.CreateSession(f.dbc, p.ID)
	require.NoError(t, err)
	_, err = f.tracker.Reset(f.dbc, s.ID, StepRestarting)
	require.True(t, errors.Is(err, apierr.ErrActiveSession), "reset while another is active: err=%v", err)

	_, err = f.tracker.Fail(f.dbc, other.ID, "cleanup")
	require.NoError(t, err)
	reset, err := f.tracker.Reset(f.dbc, s.ID, StepRestarting)
	require.NoError(t, err)
	require.Equal(t, domainAnalysis.SessionStatusCreated, reset.Status)
	require.Equal(t, 0, reset.Progress)
	require.Equal(t, StepRestarting, reset.CurrentStep)
	require.Empty(t, reset.ErrorMessage)
	require.Nil(t, reset.CompletedAt)
	require.Equal(t, 1, reset.Attempts)
}

func TestSessionTrackerNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.tracker.UpdateProgress(f.dbc, uuid.New(), 10, "x", nil)
	require.True(t, errors.Is(err, apierr.ErrNotFound), "err=%v", err)

	_, err = f.tracker.CreateSession(f.dbc, uuid.New())
	require.True(t, errors.Is(err, apierr.ErrNotFound), "err=%v", err)

	s, err := f.tracker.GetSession(f.dbc, uuid.New())
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestSessionTrackerPublishesBothChannels(t *testing.T) {
	f := newFixture(t)
	p := testutil.SeedProject(t, f.dbc.Ctx, f.tx, "channels")

	var byProject []int
	sub := f.rec.Subscribe(realtime.ProjectKey(p.ID), func(pl realtime.ProgressPayload) { byProject = append(byProject, pl.Progress) })
	defer f.rec.Unsubscribe(sub)

	s, err := f.tracker.CreateSession(f.dbc, p.ID)
	require.NoError(t, err)
	est := 42
	_, err = f.tracker.UpdateProgress(f.dbc, s.ID, 10, "Preprocessing", &est)
	require.NoError(t, err)

	require.Equal(t, []int{0, 10}, byProject)
	last := f.rec.Payloads()[1]
	require.Equal(t, 42, *last.EstimatedRemaining)
	require.Equal(t, domainAnalysis.SessionStatusProcessing, last.Status)
}
