package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/verbatim-backend/internal/domain"
)

// ActiveSessionIndex enforces at most one created/processing session per project.
const ActiveSessionIndex = "uniq_analysis_session_active"

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	// Partial unique indexes are supported by both Postgres and SQLite.
	stmt := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON analysis_session (project_id) WHERE status IN ('created','processing')`,
		ActiveSessionIndex,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s: %w", ActiveSessionIndex, err)
	}
	return nil
}

func (s *Service) AutoMigrateAll() error {
	s.log.Info("Running auto migrations")
	return AutoMigrateAll(s.db)
}
