package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/verbatim-backend/internal/domain/research"
	"github.com/yungbote/verbatim-backend/internal/http/response"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/services"
)

const (
	maxUploadBytes   = 32 << 20
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type ProjectHandler struct {
	log      *logger.Logger
	projects services.ProjectService
	search   services.VerbatimSearch
}

func NewProjectHandler(log *logger.Logger, projects services.ProjectService, search services.VerbatimSearch) *ProjectHandler {
	return &ProjectHandler{
		log:      log.With("handler", "ProjectHandler"),
		projects: projects,
		search:   search,
	}
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("name is required"))
		return
	}
	p, err := h.projects.CreateProject(dbctx.Context{Ctx: c.Request.Context()}, req.Name, req.Description)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"project": p})
}

// GET /api/projects?limit=&offset=
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPageLimit)
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	rows, err := h.projects.ListProjects(dbctx.Context{Ctx: c.Request.Context()}, limit, offset)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"projects": rows, "limit": limit, "offset": offset})
}

// GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.GetProject(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.projects.DeleteProject(dbctx.Context{Ctx: c.Request.Context()}, id); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PUT /api/projects/:id/configuration
func (h *ProjectHandler) Configure(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	cfg := research.DefaultProjectConfiguration()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	p, err := h.projects.Configure(dbctx.Context{Ctx: c.Request.Context()}, id, cfg)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// POST /api/projects/:id/guide (multipart field "file")
func (h *ProjectHandler) UploadGuide(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("missing file: %w", err))
		return
	}
	up, err := readUpload(fh)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_upload", err)
		return
	}
	guide, err := h.projects.UploadGuide(dbctx.Context{Ctx: c.Request.Context()}, id, up)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"guide": guide})
}

// GET /api/projects/:id/guide
func (h *ProjectHandler) GetGuide(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	guide, err := h.projects.GetGuide(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"guide": guide})
}

// POST /api/projects/:id/transcripts (multipart field "files", repeated)
func (h *ProjectHandler) UploadTranscripts(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("no files uploaded"))
		return
	}
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		up, err := readUpload(fh)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_upload", err)
			return
		}
		uploads = append(uploads, up)
	}
	rows, err := h.projects.UploadTranscripts(dbctx.Context{Ctx: c.Request.Context()}, id, uploads)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"transcripts": rows})
}

// GET /api/projects/:id/transcripts
func (h *ProjectHandler) ListTranscripts(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	rows, err := h.projects.ListTranscripts(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"transcripts": rows})
}

// GET /api/projects/:id/verbatims/similar?q=&limit=
func (h *ProjectHandler) SimilarVerbatims(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if h.search == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "search_disabled", errors.New("verbatim search is not configured"))
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", errors.New("q is required"))
		return
	}
	hits, err := h.search.Similar(dbctx.Context{Ctx: c.Request.Context()}, id, q, queryInt(c, "limit", 10))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"hits": hits})
}

func readUpload(fh *multipart.FileHeader) (services.Upload, error) {
	if fh.Size > maxUploadBytes {
		return services.Upload{}, fmt.Errorf("%s exceeds %d bytes", fh.Filename, maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		return services.Upload{}, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	if len(data) > maxUploadBytes {
		return services.Upload{}, fmt.Errorf("%s exceeds %d bytes", fh.Filename, maxUploadBytes)
	}
	return services.Upload{
		FileName: fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_"+name, fmt.Errorf("invalid %s: %w", name, err))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
