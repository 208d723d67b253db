package postgres

import (
	"context"
	"fmt"

	"github.com/Tamabadger/anatoview-sub000/internal/cache"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager

	// pending is set on transaction-bound copies; it defers cache
	// invalidations until the enclosing transaction commits.
	pending *txPending
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// inTransaction reports whether this call runs inside a transaction, either
// through an explicit tx argument or because the repo itself is tx-bound.
func (a *AttemptPostgreSQL) inTransaction(tx *gorm.DB) bool {
	return tx != nil || a.pending != nil
}

// invalidate drops cache entries now, or after commit when tx-bound.
func (a *AttemptPostgreSQL) invalidate(ctx context.Context, op func(context.Context)) {
	if a.pending != nil {
		a.pending.add(op)
		return
	}
	op(ctx)
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.LabAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LabAttempt, error) {
	db := a.getDB(tx)
	// Reads inside a transaction must see the transaction's own writes
	if a.inTransaction(tx) {
		var attempt models.LabAttempt
		if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
			return nil, err
		}
		return &attempt, nil
	}

	cacheKey := fmt.Sprintf("id:%d", id)
	var attempt models.LabAttempt
	err := a.cacheManager.Attempt.CacheOrExecute(ctx, cacheKey, &attempt, cache.AttemptCacheConfig.TTL, func() (interface{}, error) {
		var dbAttempt models.LabAttempt
		if err := db.WithContext(ctx).First(&dbAttempt, id).Error; err != nil {
			return nil, err
		}
		return &dbAttempt, nil
	})
	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.LabAttempt, error) {
	db := a.getDB(tx)
	var attempt models.LabAttempt
	if err := db.WithContext(ctx).
		Preload("Lab").
		Preload("Lab.Structures").
		Preload("Responses").
		Preload("Responses.Structure").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.LabAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return err
	}
	a.invalidate(ctx, func(ctx context.Context) {
		cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID, attempt.LabID, attempt.StudentID)
	})
	return nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.LabAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.LabAttempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.LabAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Lab").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByLab(ctx context.Context, tx *gorm.DB, labID uint, filters repositories.AttemptFilters) ([]*models.LabAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.LabAttempt
	var total int64

	query := db.WithContext(ctx).Model(&models.LabAttempt{}).Where("lab_id = ?", labID)
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Lab").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.LabAttempt, int64, error) {
	filters.StudentID = &studentID
	return a.List(ctx, tx, filters)
}

// GetByLabAndStudent retrieves all attempts by a student for a specific lab
func (a *AttemptPostgreSQL) GetByLabAndStudent(ctx context.Context, tx *gorm.DB, labID uint, studentID string) ([]*models.LabAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.LabAttempt
	if err := db.WithContext(ctx).
		Where("lab_id = ? AND student_id = ?", labID, studentID).
		Order("attempt_number DESC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("failed to get attempts by lab and student: %w", err)
	}
	return attempts, nil
}

func (a *AttemptPostgreSQL) GetByStatus(ctx context.Context, tx *gorm.DB, status models.AttemptStatus, limit, offset int) ([]*models.LabAttempt, error) {
	db := a.getDB(tx)
	var attempts []*models.LabAttempt
	query := db.WithContext(ctx).Where("status = ?", status)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Preload("Lab").Find(&attempts).Error; err != nil {
		return nil, err
	}

	return attempts, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (*models.LabAttempt, error) {
	db := a.getDB(tx)
	var attempt models.LabAttempt
	if err := db.WithContext(ctx).
		Where("lab_id = ? AND student_id = ? AND status IN ?", labID, studentID,
			[]models.AttemptStatus{models.AttemptNotStarted, models.AttemptInProgress}).
		First(&attempt).Error; err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (a *AttemptPostgreSQL) HasActiveAttempt(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (bool, error) {
	db := a.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.LabAttempt{}).
		Where("lab_id = ? AND student_id = ? AND status IN ?", labID, studentID,
			[]models.AttemptStatus{models.AttemptNotStarted, models.AttemptInProgress}).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}

func (a *AttemptPostgreSQL) CountByLabAndStudent(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (int64, error) {
	db := a.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.LabAttempt{}).
		Where("lab_id = ? AND student_id = ?", labID, studentID).
		Count(&count).Error
	return count, err
}

func (a *AttemptPostgreSQL) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.LabAttempt{}).
		Where("id = ?", id).
		Update("status", status).Error; err != nil {
		return err
	}
	a.invalidate(ctx, func(ctx context.Context) {
		cache.SafeDelete(ctx, a.cacheManager.Attempt, fmt.Sprintf("id:%d", id))
	})
	return nil
}
