package research

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type DiscussionGuideRepo interface {
	Replace(dbc dbctx.Context, guide *types.DiscussionGuide) (*types.DiscussionGuide, error)
	GetByProjectID(dbc dbctx.Context, projectID uuid.UUID) (*types.DiscussionGuide, error)
	SetObjectives(dbc dbctx.Context, id uuid.UUID, objectives []types.Objective) error
	ClearObjectives(dbc dbctx.Context, projectID uuid.UUID) error
}

type discussionGuideRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDiscussionGuideRepo(db *gorm.DB, baseLog *logger.Logger) DiscussionGuideRepo {
	return &discussionGuideRepo{
		db:  db,
		log: baseLog.With("repo", "DiscussionGuideRepo"),
	}
}

// Replace stores guide as the project's only discussion guide.
func (r *discussionGuideRepo) Replace(dbc dbctx.Context, guide *types.DiscussionGuide) (*types.DiscussionGuide, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", guide.ProjectID).Delete(&types.DiscussionGuide{}).Error; err != nil {
			return err
		}
		return tx.Create(guide).Error
	})
	if err != nil {
		return nil, err
	}
	return guide, nil
}

// GetByProjectID returns nil, nil when no guide was uploaded.
func (r *discussionGuideRepo) GetByProjectID(dbc dbctx.Context, projectID uuid.UUID) (*types.DiscussionGuide, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.DiscussionGuide
	err := transaction.WithContext(dbc.Ctx).Where("project_id = ?", projectID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *discussionGuideRepo) SetObjectives(dbc dbctx.Context, id uuid.UUID, objectives []types.Objective) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if objectives == nil {
		objectives = []types.Objective{}
	}
	raw, err := json.Marshal(objectives)
	if err != nil {
		return err
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.DiscussionGuide{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"objectives": datatypes.JSON(raw),
			"updated_at": time.Now(),
		}).Error
}

func (r *discussionGuideRepo) ClearObjectives(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.DiscussionGuide{}).
		Where("project_id = ?", projectID).
		Updates(map[string]interface{}{
			"objectives": gorm.Expr("NULL"),
			"updated_at": time.Now(),
		}).Error
}
