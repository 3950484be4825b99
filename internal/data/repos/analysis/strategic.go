package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type StrategicAnalysisRepo interface {
	Create(dbc dbctx.Context, rows []*types.StrategicAnalysis) ([]*types.StrategicAnalysis, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.StrategicAnalysis, error)
	DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error
}

type strategicAnalysisRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStrategicAnalysisRepo(db *gorm.DB, baseLog *logger.Logger) StrategicAnalysisRepo {
	return &strategicAnalysisRepo{
		db:  db,
		log: baseLog.With("repo", "StrategicAnalysisRepo"),
	}
}

func (r *strategicAnalysisRepo) Create(dbc dbctx.Context, rows []*types.StrategicAnalysis) ([]*types.StrategicAnalysis, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.StrategicAnalysis{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *strategicAnalysisRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.StrategicAnalysis, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StrategicAnalysis
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("broad_topic ASC, sub_topic ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *strategicAnalysisRepo) DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.StrategicAnalysis{}).Error
}
