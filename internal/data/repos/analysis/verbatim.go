package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

const insertBatchSize = 200

type VerbatimRepo interface {
	Create(dbc dbctx.Context, rows []*types.Verbatim) ([]*types.Verbatim, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Verbatim, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Verbatim, error)
	ListByTopicPair(dbc dbctx.Context, projectID uuid.UUID, broadTopic, subTopic string, limit int) ([]*types.Verbatim, error)
	CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
	MaxSequence(dbc dbctx.Context, projectID uuid.UUID) (int, error)
	DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error
}

type verbatimRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVerbatimRepo(db *gorm.DB, baseLog *logger.Logger) VerbatimRepo {
	return &verbatimRepo{
		db:  db,
		log: baseLog.With("repo", "VerbatimRepo"),
	}
}

func (r *verbatimRepo) Create(dbc dbctx.Context, rows []*types.Verbatim) ([]*types.Verbatim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Verbatim{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *verbatimRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Verbatim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Verbatim
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Order("sequence ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByProjectID returns verbatims in extraction order.
func (r *verbatimRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Verbatim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Verbatim
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("sequence ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListByTopicPair returns the verbatims tagged with (broadTopic, subTopic).
// limit <= 0 means no cap.
func (r *verbatimRepo) ListByTopicPair(dbc dbctx.Context, projectID uuid.UUID, broadTopic, subTopic string, limit int) ([]*types.Verbatim, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	members := transaction.Session(&gorm.Session{NewDB: true}).
		Model(&types.EmergentTopic{}).
		Select("verbatim_id").
		Where("project_id = ? AND broad_topic = ? AND sub_topic = ?", projectID, broadTopic, subTopic)
	q := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND id IN (?)", projectID, members).
		Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []*types.Verbatim
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *verbatimRepo) CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Verbatim{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	return n, err
}

// MaxSequence is the highest sequence written for the project, or -1 if none.
func (r *verbatimRepo) MaxSequence(dbc dbctx.Context, projectID uuid.UUID) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row struct {
		Max *int
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Verbatim{}).
		Where("project_id = ?", projectID).
		Select("MAX(sequence) AS max").
		Scan(&row).Error; err != nil {
		return -1, err
	}
	if row.Max == nil {
		return -1, nil
	}
	return *row.Max, nil
}

func (r *verbatimRepo) DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.Verbatim{}).Error
}
