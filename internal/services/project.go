package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/verbatim-backend/internal/data/repos"
	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/domain/research"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/ctxutil"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/gcp"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
	"github.com/yungbote/verbatim-backend/internal/platform/textextract"
)

// Upload is one file received from the client.
type Upload struct {
	FileName string
	MimeType string
	Data     []byte
}

// TextExtractor turns uploaded bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}

type ProjectService interface {
	CreateProject(dbc dbctx.Context, name, description string) (*types.Project, error)
	GetProject(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	ListProjects(dbc dbctx.Context, limit, offset int) ([]*types.Project, error)
	DeleteProject(dbc dbctx.Context, id uuid.UUID) error
	Configure(dbc dbctx.Context, id uuid.UUID, cfg research.ProjectConfiguration) (*types.Project, error)
	UploadGuide(dbc dbctx.Context, projectID uuid.UUID, file Upload) (*types.DiscussionGuide, error)
	GetGuide(dbc dbctx.Context, projectID uuid.UUID) (*types.DiscussionGuide, error)
	UploadTranscripts(dbc dbctx.Context, projectID uuid.UUID, files []Upload) ([]*types.Transcript, error)
	ListTranscripts(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Transcript, error)
}

type projectService struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   repos.Set
	store   gcp.ObjectStore
	extract TextExtractor
}

func NewProjectService(db *gorm.DB, baseLog *logger.Logger, set repos.Set, store gcp.ObjectStore, extract TextExtractor) ProjectService {
	return &projectService{
		db:      db,
		log:     baseLog.With("service", "ProjectService"),
		repos:   set,
		store:   store,
		extract: extract,
	}
}

func (s *projectService) CreateProject(dbc dbctx.Context, name, description string) (*types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.New(http.StatusBadRequest, "missing_name", fmt.Errorf("project name is required"))
	}
	cfg, _ := json.Marshal(research.DefaultProjectConfiguration())
	p, err := s.repos.Project.Create(dbc, &types.Project{
		Name:          name,
		Description:   strings.TrimSpace(description),
		Status:        research.ProjectStatusCreated,
		Configuration: datatypes.JSON(cfg),
	})
	if err != nil {
		return nil, apierr.Persist("create project", err)
	}
	s.log.Info("Project created", "project_id", p.ID, "trace_id", traceID(dbc))
	return p, nil
}

func (s *projectService) GetProject(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	p, err := s.repos.Project.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.Persist("load project", err)
	}
	if p == nil {
		return nil, apierr.NotFound("project", id)
	}
	return p, nil
}

func (s *projectService) ListProjects(dbc dbctx.Context, limit, offset int) ([]*types.Project, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.repos.Project.List(dbc, limit, offset)
	if err != nil {
		return nil, apierr.Persist("list projects", err)
	}
	return rows, nil
}

func (s *projectService) DeleteProject(dbc dbctx.Context, id uuid.UUID) error {
	if _, err := s.GetProject(dbc, id); err != nil {
		return err
	}
	if err := s.requireIdle(dbc, id); err != nil {
		return err
	}
	if err := s.repos.Project.Delete(dbc, id); err != nil {
		return apierr.Persist("delete project", err)
	}
	if s.store != nil {
		ctx := ctxutil.Default(dbc.Ctx)
		keys, err := s.store.List(ctx, projectPrefix(id))
		if err != nil {
			s.log.Warn("List stored uploads failed", "project_id", id, "error", err)
		}
		for _, k := range keys {
			if err := s.store.Delete(ctx, k); err != nil && !errors.Is(err, gcp.ErrObjectNotFound) {
				s.log.Warn("Delete stored upload failed", "key", k, "error", err)
			}
		}
	}
	s.log.Info("Project deleted", "project_id", id)
	return nil
}

func (s *projectService) Configure(dbc dbctx.Context, id uuid.UUID, cfg research.ProjectConfiguration) (*types.Project, error) {
	p, err := s.GetProject(dbc, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireIdle(dbc, id); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Template) == "" {
		cfg.Template = research.DefaultProjectConfiguration().Template
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Project.UpdateFields(dbc, id, map[string]interface{}{
		"configuration": datatypes.JSON(raw),
		"status":        research.ProjectStatusConfigured,
	}); err != nil {
		return nil, apierr.Persist("configure project", err)
	}
	p.Configuration = datatypes.JSON(raw)
	p.Status = research.ProjectStatusConfigured
	return p, nil
}

func (s *projectService) UploadGuide(dbc dbctx.Context, projectID uuid.UUID, file Upload) (*types.DiscussionGuide, error) {
	if _, err := s.GetProject(dbc, projectID); err != nil {
		return nil, err
	}
	if err := s.requireIdle(dbc, projectID); err != nil {
		return nil, err
	}
	text, err := s.extractText(dbc, file)
	if err != nil {
		return nil, err
	}
	key, err := s.putRaw(dbc, path.Join(projectPrefix(projectID), "guide"), file)
	if err != nil {
		return nil, err
	}
	guide, err := s.repos.Guide.Replace(dbc, &types.DiscussionGuide{
		ProjectID: projectID,
		FileMeta:  fileMeta(file, key),
		Content:   text,
	})
	if err != nil {
		return nil, apierr.Persist("save guide", err)
	}
	s.log.Info("Discussion guide uploaded", "project_id", projectID, "file", file.FileName, "chars", len(text))
	if err := s.markUploaded(dbc, projectID); err != nil {
		return nil, err
	}
	return guide, nil
}

func (s *projectService) GetGuide(dbc dbctx.Context, projectID uuid.UUID) (*types.DiscussionGuide, error) {
	g, err := s.repos.Guide.GetByProjectID(dbc, projectID)
	if err != nil {
		return nil, apierr.Persist("load guide", err)
	}
	if g == nil {
		return nil, apierr.NotFound("discussion guide for project", projectID)
	}
	return g, nil
}

// UploadTranscripts extracts every file before writing any row, so one bad
// file rejects the whole batch.
func (s *projectService) UploadTranscripts(dbc dbctx.Context, projectID uuid.UUID, files []Upload) ([]*types.Transcript, error) {
	if len(files) == 0 {
		return nil, apierr.New(http.StatusBadRequest, "missing_files", fmt.Errorf("at least one transcript file is required"))
	}
	if _, err := s.GetProject(dbc, projectID); err != nil {
		return nil, err
	}
	if err := s.requireIdle(dbc, projectID); err != nil {
		return nil, err
	}
	rows := make([]*types.Transcript, 0, len(files))
	for _, f := range files {
		text, err := s.extractText(dbc, f)
		if err != nil {
			return nil, err
		}
		key, err := s.putRaw(dbc, path.Join(projectPrefix(projectID), "transcripts"), f)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &types.Transcript{
			ProjectID: projectID,
			FileMeta:  fileMeta(f, key),
			Content:   text,
		})
	}
	created, err := s.repos.Transcript.Create(dbc, rows)
	if err != nil {
		return nil, apierr.Persist("save transcripts", err)
	}
	s.log.Info("Transcripts uploaded", "project_id", projectID, "count", len(created))
	if err := s.markUploaded(dbc, projectID); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *projectService) ListTranscripts(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Transcript, error) {
	if _, err := s.GetProject(dbc, projectID); err != nil {
		return nil, err
	}
	rows, err := s.repos.Transcript.ListByProjectID(dbc, projectID)
	if err != nil {
		return nil, apierr.Persist("list transcripts", err)
	}
	return rows, nil
}

func (s *projectService) extractText(dbc dbctx.Context, f Upload) (string, error) {
	if strings.TrimSpace(f.FileName) == "" || len(f.Data) == 0 {
		return "", apierr.New(http.StatusBadRequest, "empty_file", fmt.Errorf("file %q is empty", f.FileName))
	}
	text, err := s.extract.Extract(ctxutil.Default(dbc.Ctx), f.FileName, f.MimeType, f.Data)
	if err != nil {
		if errors.Is(err, textextract.ErrUnsupportedType) {
			return "", apierr.New(http.StatusUnsupportedMediaType, "unsupported_file", err)
		}
		if errors.Is(err, textextract.ErrEmptyDocument) {
			return "", apierr.New(http.StatusBadRequest, "empty_file", err)
		}
		return "", apierr.New(http.StatusBadGateway, "extraction_failed", err)
	}
	return text, nil
}

func (s *projectService) putRaw(dbc dbctx.Context, prefix string, f Upload) (string, error) {
	if s.store == nil {
		return "", nil
	}
	key := path.Join(prefix, uuid.New().String()+"-"+path.Base(strings.ReplaceAll(f.FileName, "\\", "/")))
	if err := s.store.Put(ctxutil.Default(dbc.Ctx), key, bytes.NewReader(f.Data), f.MimeType); err != nil {
		return "", fmt.Errorf("store upload %s: %w", f.FileName, err)
	}
	return key, nil
}

// markUploaded moves a fresh project to uploaded once it has a guide and at
// least one transcript. Later statuses are left alone.
func (s *projectService) markUploaded(dbc dbctx.Context, projectID uuid.UUID) error {
	p, err := s.GetProject(dbc, projectID)
	if err != nil {
		return err
	}
	if p.Status != research.ProjectStatusCreated {
		return nil
	}
	if err := CheckPreconditions(dbc, s.repos, projectID); err != nil {
		var pre *apierr.PreconditionError
		if errors.As(err, &pre) {
			return nil
		}
		return err
	}
	if err := s.repos.Project.UpdateStatus(dbc, projectID, research.ProjectStatusUploaded); err != nil {
		return apierr.Persist("update project status", err)
	}
	return nil
}

func (s *projectService) requireIdle(dbc dbctx.Context, projectID uuid.UUID) error {
	active, err := s.repos.Session.GetActiveByProjectID(dbc, projectID)
	if err != nil {
		return apierr.Persist("load active session", err)
	}
	if active != nil {
		return fmt.Errorf("project %s: %w", projectID, apierr.ErrActiveSession)
	}
	return nil
}

func fileMeta(f Upload, key string) types.FileMeta {
	return types.FileMeta{
		FileName:   f.FileName,
		MimeType:   f.MimeType,
		SizeBytes:  int64(len(f.Data)),
		StorageKey: key,
	}
}

func projectPrefix(id uuid.UUID) string {
	return "projects/" + id.String()
}
