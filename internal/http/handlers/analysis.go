package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/verbatim-backend/internal/http/response"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/services"
)

type AnalysisHandler struct {
	log      *logger.Logger
	analysis services.AnalysisService
	export   services.ExportService
}

func NewAnalysisHandler(log *logger.Logger, analysis services.AnalysisService, export services.ExportService) *AnalysisHandler {
	return &AnalysisHandler{
		log:      log.With("handler", "AnalysisHandler"),
		analysis: analysis,
		export:   export,
	}
}

// POST /api/projects/:id/analysis
func (h *AnalysisHandler) StartAnalysis(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	res, err := h.analysis.StartAnalysis(dbctx.Context{Ctx: c.Request.Context()}, projectID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// GET /api/projects/:id/sessions
func (h *AnalysisHandler) ListSessions(c *gin.Context) {
	projectID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.analysis.ListSessions(dbctx.Context{Ctx: c.Request.Context()}, projectID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": rows})
}

// GET /api/sessions/:id
func (h *AnalysisHandler) GetProgress(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.analysis.GetProgress(dbctx.Context{Ctx: c.Request.Context()}, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, p)
}

// GET /api/sessions/:id/results?type=
func (h *AnalysisHandler) GetResults(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.analysis.GetResults(dbctx.Context{Ctx: c.Request.Context()}, sessionID, strings.TrimSpace(c.Query("type")))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"results": rows})
}

// POST /api/sessions/:id/retry
func (h *AnalysisHandler) RetryAnalysis(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	s, err := h.analysis.RetryAnalysis(dbctx.Context{Ctx: c.Request.Context()}, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": s})
}

// POST /api/sessions/:id/cancel
func (h *AnalysisHandler) CancelAnalysis(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	s, err := h.analysis.CancelAnalysis(dbctx.Context{Ctx: c.Request.Context()}, sessionID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": s})
}

// GET /api/sessions/:id/export?kind=strategic|mappings|topics|verbatims
func (h *AnalysisHandler) Export(c *gin.Context) {
	sessionID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	kind := strings.ToLower(strings.TrimSpace(c.DefaultQuery("kind", services.ExportStrategic)))
	var buf bytes.Buffer
	if err := h.export.ExportCSV(dbctx.Context{Ctx: c.Request.Context()}, sessionID, kind, &buf); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.csv"`, kind, sessionID))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
