package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

func authRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewAuthMiddleware(logger.Nop(), secret).RequireAuth())
	r.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, Subject(c)) })
	return r
}

func call(r *gin.Engine, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuthAcceptsSignedToken(t *testing.T) {
	r := authRouter(t, "s3cret")
	tok, err := IssueToken("s3cret", "analyst-1", time.Minute)
	require.NoError(t, err)

	rec := call(r, "/whoami", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "analyst-1", rec.Body.String())

	rec = call(r, "/whoami?token="+tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuthRejects(t *testing.T) {
	r := authRouter(t, "s3cret")
	wrongKey, err := IssueToken("other", "analyst-1", time.Minute)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "analyst-1", -time.Minute)
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"missing":   "",
		"garbage":   "not-a-jwt",
		"wrong key": wrongKey,
		"expired":   expired,
	} {
		if rec := call(r, "/whoami", tok); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: want 401, got %d", name, rec.Code)
		}
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	_, err := IssueToken("", "x", time.Minute)
	require.Error(t, err)
}
