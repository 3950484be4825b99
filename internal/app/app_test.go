package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/verbatim-backend/internal/data/db"
	"github.com/yungbote/verbatim-backend/internal/data/repos/testutil"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := defaultConfig()
	cfg.Database.Driver = db.DriverSQLite
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "app.db")
	cfg.OpenAI.DryRun = true
	cfg.Storage.Mode = "memory"
	require.NoError(t, cfg.normalize())
	return cfg
}

func TestNewWithConfigServesHealth(t *testing.T) {
	ctx := context.Background()
	a, err := NewWithConfig(ctx, testutil.Logger(t), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NoError(t, a.Start(ctx))

	for _, path := range []string{"/healthcheck", "/readyz"} {
		rec := httptest.NewRecorder()
		a.Server.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRunProjectRequiresSynchronous(t *testing.T) {
	ctx := context.Background()
	a, err := NewWithConfig(ctx, testutil.Logger(t), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	p := testutil.SeedProject(t, ctx, a.DB, "not synchronous")
	_, err = a.RunProject(ctx, p.ID)
	require.Error(t, err)
}

func TestRunProjectReportsMissingInputs(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Pipeline.Synchronous = true
	a, err := NewWithConfig(ctx, testutil.Logger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	p := testutil.SeedProject(t, ctx, a.DB, "empty project")
	_, err = a.RunProject(ctx, p.ID)
	var pre *apierr.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	require.NotEmpty(t, pre.Missing)
}

func TestShutdownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	a, err := NewWithConfig(ctx, testutil.Logger(t), testConfig(t))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Shutdown(ctx))
	a.Close()
}
