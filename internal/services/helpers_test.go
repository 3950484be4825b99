package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/realtime"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []uuid.UUID
	cancelled  []uuid.UUID
	running    map[uuid.UUID]bool
	onDispatch func(uuid.UUID)
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, sessionID uuid.UUID) error {
	d.mu.Lock()
	d.dispatched = append(d.dispatched, sessionID)
	hook := d.onDispatch
	d.mu.Unlock()
	if hook != nil {
		hook(sessionID)
	}
	return nil
}

func (d *fakeDispatcher) Cancel(sessionID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, sessionID)
	return d.running[sessionID]
}

type fixture struct {
	db       *gorm.DB
	tx       *gorm.DB
	dbc      dbctx.Context
	set      repos.Set
	rec      *realtime.Recorder
	tracker  SessionTracker
	dispatch *fakeDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	rec := realtime.NewRecorder()
	return &fixture{
		db:       db,
		tx:       tx,
		dbc:      dbctx.Context{Ctx: context.Background(), Tx: tx},
		set:      set,
		rec:      rec,
		tracker:  NewSessionTracker(log, set.Session, set.Project, rec, 300),
		dispatch: &fakeDispatcher{running: map[uuid.UUID]bool{}},
	}
}

func (f *fixture) analysis(t *testing.T, opts AnalysisOptions) AnalysisService {
	t.Helper()
	return NewAnalysisService(f.db, testutil.Logger(t), f.set, f.tracker, f.dispatch, opts)
}
