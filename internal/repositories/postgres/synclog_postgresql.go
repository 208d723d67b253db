package postgres

import (
	"context"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"gorm.io/gorm"
)

type SyncLogPostgreSQL struct {
	db *gorm.DB
}

func NewSyncLogPostgreSQL(db *gorm.DB) repositories.SyncLogRepository {
	return &SyncLogPostgreSQL{db: db}
}

func (s *SyncLogPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *SyncLogPostgreSQL) Append(ctx context.Context, tx *gorm.DB, log *models.GradeSyncLog) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(log).Error
}

func (s *SyncLogPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint, filters repositories.SyncLogFilters) ([]*models.GradeSyncLog, int64, error) {
	db := s.getDB(tx)
	var logs []*models.GradeSyncLog
	var total int64

	query := db.WithContext(ctx).Model(&models.GradeSyncLog{}).Where("attempt_id = ?", attemptID)
	if filters.Status != nil {
		query = query.Where("canvas_status = ?", *filters.Status)
	}
	if filters.DateFrom != nil {
		query = query.Where("synced_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("synced_at <= ?", *filters.DateTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("synced_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (s *SyncLogPostgreSQL) GetLatestByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.GradeSyncLog, error) {
	db := s.getDB(tx)
	var log models.GradeSyncLog
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("synced_at DESC").
		First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

func (s *SyncLogPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, labID uint) (*repositories.SyncStats, error) {
	db := s.getDB(tx)

	type statusCount struct {
		CanvasStatus models.SyncStatus
		Count        int
	}
	var counts []statusCount
	if err := db.WithContext(ctx).
		Model(&models.GradeSyncLog{}).
		Select("grade_sync_logs.canvas_status, count(*) as count").
		Joins("JOIN lab_attempts ON lab_attempts.id = grade_sync_logs.attempt_id").
		Where("lab_attempts.lab_id = ?", labID).
		Group("grade_sync_logs.canvas_status").
		Scan(&counts).Error; err != nil {
		return nil, err
	}

	stats := &repositories.SyncStats{}
	for _, c := range counts {
		stats.TotalDeliveries += c.Count
		switch c.CanvasStatus {
		case models.SyncSuccess:
			stats.Succeeded = c.Count
		case models.SyncFailed:
			stats.Failed = c.Count
		case models.SyncSkipped:
			stats.Skipped = c.Count
		case models.SyncError:
			stats.Errored = c.Count
		}
	}

	return stats, nil
}
