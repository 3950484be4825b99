package research

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type TranscriptRepo interface {
	Create(dbc dbctx.Context, transcripts []*types.Transcript) ([]*types.Transcript, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transcript, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Transcript, error)
	CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
}

type transcriptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTranscriptRepo(db *gorm.DB, baseLog *logger.Logger) TranscriptRepo {
	return &transcriptRepo{
		db:  db,
		log: baseLog.With("repo", "TranscriptRepo"),
	}
}

func (r *transcriptRepo) Create(dbc dbctx.Context, transcripts []*types.Transcript) ([]*types.Transcript, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(transcripts) == 0 {
		return []*types.Transcript{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&transcripts).Error; err != nil {
		return nil, err
	}
	return transcripts, nil
}

func (r *transcriptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Transcript, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.Transcript
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListByProjectID returns transcripts in upload order.
func (r *transcriptRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Transcript, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Transcript
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC, file_name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *transcriptRepo) CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.Transcript{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	return n, err
}
