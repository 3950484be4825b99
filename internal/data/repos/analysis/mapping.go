package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type QuestionMappingRepo interface {
	Create(dbc dbctx.Context, rows []*types.QuestionMapping) ([]*types.QuestionMapping, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.QuestionMapping, error)
	CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
	DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error
}

type questionMappingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionMappingRepo(db *gorm.DB, baseLog *logger.Logger) QuestionMappingRepo {
	return &questionMappingRepo{
		db:  db,
		log: baseLog.With("repo", "QuestionMappingRepo"),
	}
}

func (r *questionMappingRepo) Create(dbc dbctx.Context, rows []*types.QuestionMapping) ([]*types.QuestionMapping, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.QuestionMapping{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *questionMappingRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.QuestionMapping, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionMapping
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("question_id ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionMappingRepo) CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.QuestionMapping{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	return n, err
}

func (r *questionMappingRepo) DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.QuestionMapping{}).Error
}
