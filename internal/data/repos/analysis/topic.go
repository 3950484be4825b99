package analysis

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type EmergentTopicRepo interface {
	Create(dbc dbctx.Context, rows []*types.EmergentTopic) ([]*types.EmergentTopic, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.EmergentTopic, error)
	ListDistinctPairs(dbc dbctx.Context, projectID uuid.UUID) ([]types.TopicPair, error)
	DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error
}

type emergentTopicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEmergentTopicRepo(db *gorm.DB, baseLog *logger.Logger) EmergentTopicRepo {
	return &emergentTopicRepo{
		db:  db,
		log: baseLog.With("repo", "EmergentTopicRepo"),
	}
}

func (r *emergentTopicRepo) Create(dbc dbctx.Context, rows []*types.EmergentTopic) ([]*types.EmergentTopic, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.EmergentTopic{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *emergentTopicRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.EmergentTopic, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.EmergentTopic
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("broad_topic ASC, sub_topic ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ListDistinctPairs returns each distinct (broad_topic, sub_topic) with the
// number of distinct verbatims assigned to it, ordered by broad then sub.
func (r *emergentTopicRepo) ListDistinctPairs(dbc dbctx.Context, projectID uuid.UUID) ([]types.TopicPair, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []types.TopicPair
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.EmergentTopic{}).
		Select("broad_topic, sub_topic, COUNT(DISTINCT verbatim_id) AS count").
		Where("project_id = ?", projectID).
		Group("broad_topic, sub_topic").
		Order("broad_topic ASC, sub_topic ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *emergentTopicRepo) DeleteByProjectID(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.EmergentTopic{}).Error
}
