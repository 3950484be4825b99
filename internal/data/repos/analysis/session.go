package analysis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/verbatim-backend/internal/domain"
	domainAnalysis "github.com/yungbote/verbatim-backend/internal/domain/analysis"
	"github.com/yungbote/verbatim-backend/internal/platform/apierr"
	"github.com/yungbote/verbatim-backend/internal/platform/dbctx"
	"github.com/yungbote/verbatim-backend/internal/platform/logger"
)

type AnalysisSessionRepo interface {
	Create(dbc dbctx.Context, session *types.AnalysisSession) (*types.AnalysisSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AnalysisSession, error)
	ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error)
	CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
	GetActiveByProjectID(dbc dbctx.Context, projectID uuid.UUID) (*types.AnalysisSession, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error)
	ClaimNextRunnable(dbc dbctx.Context, staleProcessing time.Duration) (*types.AnalysisSession, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type analysisSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisSessionRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisSessionRepo {
	return &analysisSessionRepo{
		db:  db,
		log: baseLog.With("repo", "AnalysisSessionRepo"),
	}
}

// Create inserts a session. A second active session for the same project is
// rejected with apierr.ErrActiveSession, by the pre-check inside the
// transaction or by the partial unique index under a race.
func (r *analysisSessionRepo) Create(dbc dbctx.Context, session *types.AnalysisSession) (*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var n int64
		if err := txx.Model(&types.AnalysisSession{}).
			Where("project_id = ? AND status IN ?", session.ProjectID, domainAnalysis.ActiveSessionStatuses).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apierr.ErrActiveSession
		}
		return txx.Create(session).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("project %s: %w", session.ProjectID, apierr.ErrActiveSession)
		}
		return nil, err
	}
	return session, nil
}

// GetByID returns nil, nil when the session does not exist.
func (r *analysisSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.AnalysisSession
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *analysisSessionRepo) ListByProjectID(dbc dbctx.Context, projectID uuid.UUID) ([]*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.AnalysisSession
	if err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *analysisSessionRepo) CountByProjectID(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisSession{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	return n, err
}

func (r *analysisSessionRepo) GetActiveByProjectID(dbc dbctx.Context, projectID uuid.UUID) (*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out types.AnalysisSession
	err := transaction.WithContext(dbc.Ctx).
		Where("project_id = ? AND status IN ?", projectID, domainAnalysis.ActiveSessionStatuses).
		Order("created_at DESC").
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *analysisSessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisSession{}).
		Where("id = ?", id).
		Updates(updates).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("session %s: %w", id, apierr.ErrActiveSession)
	}
	return err
}

func (r *analysisSessionRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisSession{}).
		Where("id = ?", id)
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, fmt.Errorf("session %s: %w", id, apierr.ErrActiveSession)
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateFieldsIfStatus is a compare-and-swap on status.
func (r *analysisSessionRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(allowedStatuses) == 0 {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisSession{}).
		Where("id = ? AND status IN ?", id, allowedStatuses).
		Updates(updates)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return false, fmt.Errorf("session %s: %w", id, apierr.ErrActiveSession)
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ClaimNextRunnable picks the oldest created session, or a processing session
// whose heartbeat went stale, and marks it processing. The status guard on the
// update keeps two workers from claiming the same row even where row locks are
// unavailable.
func (r *analysisSessionRepo) ClaimNextRunnable(dbc dbctx.Context, staleProcessing time.Duration) (*types.AnalysisSession, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleProcessing)
	var claimed *types.AnalysisSession
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var session types.AnalysisSession
		q := txx
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		q = q.Where(`
        (
          status = ?
          OR (
            status = ?
            AND updated_at < ?
          )
        )
      `, domainAnalysis.SessionStatusCreated, domainAnalysis.SessionStatusProcessing, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&session).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		updates := map[string]interface{}{
			"status":     domainAnalysis.SessionStatusProcessing,
			"updated_at": now,
		}
		if session.StartedAt == nil {
			updates["started_at"] = now
		}
		cas := txx.Model(&types.AnalysisSession{}).Where("id = ? AND status = ?", session.ID, session.Status)
		if session.Status == domainAnalysis.SessionStatusProcessing {
			cas = cas.Where("updated_at < ?", staleCutoff)
		}
		res := cas.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		session.Status = domainAnalysis.SessionStatusProcessing
		session.UpdatedAt = now
		if session.StartedAt == nil {
			session.StartedAt = &now
		}
		claimed = &session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *analysisSessionRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.AnalysisSession{}).
		Where("id = ? AND status = ?", id, domainAnalysis.SessionStatusProcessing).
		Update("updated_at", time.Now()).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
