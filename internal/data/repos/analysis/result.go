package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

// AnalysisResultRepo is append-only; there is no update or delete.
type AnalysisResultRepo interface {
	Create(dbc dbctx.Context, rows []*types.AnalysisResult) ([]*types.AnalysisResult, error)
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID, resultType string) ([]*types.AnalysisResult, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID, resultType string) ([]*types.AnalysisResult, error)
}

type analysisResultRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisResultRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisResultRepo {
	return &analysisResultRepo{
		db:  db,
		log: baseLog.With("repo", "AnalysisResultRepo"),
	}
}

func (r *analysisResultRepo) Create(dbc dbctx.Context, rows []*types.AnalysisResult) ([]*types.AnalysisResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.AnalysisResult{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListBySessionID returns results oldest first; an empty resultType matches all.
func (r *analysisResultRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID, resultType string) ([]*types.AnalysisResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("session_id = ?", sessionID)
	if resultType != "" {
		q = q.Where("result_type = ?", resultType)
	}
	var out []*types.AnalysisResult
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *analysisResultRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID, resultType string) ([]*types.AnalysisResult, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("project_id = ?", projectID)
	if resultType != "" {
		q = q.Where("result_type = ?", resultType)
	}
	var out []*types.AnalysisResult
	if err := q.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
