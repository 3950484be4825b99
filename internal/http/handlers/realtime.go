package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/verbatim-backend/internal/http/response"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/realtime"
	"github.com/yungbote/verbatim-backend/internal/services"
)

// SSEServer writes a subscription to the response as Server-Sent Events.
type SSEServer interface {
	ServeSSE(w http.ResponseWriter, r *http.Request, key realtime.SubscriptionKey, initial *realtime.ProgressPayload)
}

type RealtimeHandler struct {
	log      *logger.Logger
	sse      SSEServer
	analysis services.AnalysisService
}

func NewRealtimeHandler(log *logger.Logger, sse SSEServer, analysis services.AnalysisService) *RealtimeHandler {
	return &RealtimeHandler{
		log:      log.With("handler", "RealtimeHandler"),
		sse:      sse,
		analysis: analysis,
	}
}

// GET /api/sessions/:id/stream
func (h *RealtimeHandler) StreamSession(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	initial, err := h.analysis.GetProgress(dbctx.Context{Ctx: c.Request.Context()}, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	h.log.Debug("SSE subscribe", "session_id", sessionID)
	h.sse.ServeSSE(c.Writer, c.Request, realtime.SessionKey(sessionID), initial)
}

// GET /api/projects/:id/stream
// The newest session's state is sent first when the project has one.
func (h *RealtimeHandler) StreamProject(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	sessions, err := h.analysis.ListSessions(dbc, projectID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	var initial *realtime.ProgressPayload
	if len(sessions) > 0 {
		p := services.PayloadFromSession(sessions[0])
		initial = &p
	}
	h.log.Debug("SSE subscribe", "project_id", projectID)
	h.sse.ServeSSE(c.Writer, c.Request, realtime.ProjectKey(projectID), initial)
}
