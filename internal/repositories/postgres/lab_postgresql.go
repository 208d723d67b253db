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

type LabPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewLabPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.LabRepository {
	return &LabPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (l *LabPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return l.db
}

func (l *LabPostgreSQL) Create(ctx context.Context, tx *gorm.DB, lab *models.Lab) error {
	db := l.getDB(tx)
	return db.WithContext(ctx).Create(lab).Error
}

func (l *LabPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Lab, error) {
	db := l.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var lab models.Lab

	err := l.cacheManager.Lab.CacheOrExecute(ctx, cacheKey, &lab, cache.LabCacheConfig.TTL, func() (interface{}, error) {
		var dbLab models.Lab
		if err := db.WithContext(ctx).First(&dbLab, id).Error; err != nil {
			return nil, err
		}
		return &dbLab, nil
	})
	if err != nil {
		return nil, err
	}

	return &lab, nil
}

func (l *LabPostgreSQL) GetByIDWithStructures(ctx context.Context, tx *gorm.DB, id uint) (*models.Lab, error) {
	db := l.getDB(tx)
	var lab models.Lab
	if err := db.WithContext(ctx).
		Preload("Structures").
		First(&lab, id).Error; err != nil {
		return nil, err
	}
	return &lab, nil
}

func (l *LabPostgreSQL) Update(ctx context.Context, tx *gorm.DB, lab *models.Lab) error {
	db := l.getDB(tx)
	if err := db.WithContext(ctx).Save(lab).Error; err != nil {
		return err
	}
	cache.InvalidateLabCache(ctx, l.cacheManager, lab.ID)
	return nil
}

func (l *LabPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := l.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Lab{}, id).Error; err != nil {
		return err
	}
	cache.InvalidateLabCache(ctx, l.cacheManager, id)
	return nil
}

func (l *LabPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.LabFilters) ([]*models.Lab, int64, error) {
	db := l.getDB(tx)
	var labs []*models.Lab
	var total int64

	query := db.WithContext(ctx).Model(&models.Lab{})
	query = l.helpers.ApplyLabFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = l.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&labs).Error; err != nil {
		return nil, 0, err
	}

	return labs, total, nil
}

func (l *LabPostgreSQL) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.LabFilters) ([]*models.Lab, int64, error) {
	filters.CreatedBy = &creatorID
	return l.List(ctx, tx, filters)
}

func (l *LabPostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := l.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Lab{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *LabPostgreSQL) IsPublished(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := l.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.Lab{}).
		Where("id = ? AND published = ?", id, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (l *LabPostgreSQL) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.LabStats, error) {
	db := l.getDB(tx)
	cacheKey := fmt.Sprintf("lab:%d:stats", id)
	var stats repositories.LabStats

	err := l.cacheManager.Stats.CacheOrExecute(ctx, cacheKey, &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		result := &repositories.LabStats{
			StatusBreakdown: make(map[models.AttemptStatus]int),
		}

		type statusCount struct {
			Status models.AttemptStatus
			Count  int
		}
		var counts []statusCount
		if err := db.WithContext(ctx).
			Model(&models.LabAttempt{}).
			Select("status, count(*) as count").
			Where("lab_id = ?", id).
			Group("status").
			Scan(&counts).Error; err != nil {
			return nil, err
		}
		for _, c := range counts {
			result.StatusBreakdown[c.Status] = c.Count
			result.TotalAttempts += c.Count
		}
		result.GradedAttempts = result.StatusBreakdown[models.AttemptGraded]

		type averages struct {
			AvgScore      float64
			AvgPercentage float64
			AvgTimeSpent  float64
		}
		var avg averages
		if err := db.WithContext(ctx).
			Model(&models.LabAttempt{}).
			Select("COALESCE(AVG(score), 0) as avg_score, COALESCE(AVG(percentage), 0) as avg_percentage, COALESCE(AVG(time_spent), 0) as avg_time_spent").
			Where("lab_id = ? AND status = ?", id, models.AttemptGraded).
			Scan(&avg).Error; err != nil {
			return nil, err
		}
		result.AverageScore = avg.AvgScore
		result.AveragePercentage = avg.AvgPercentage
		result.AverageTimeSpent = int(avg.AvgTimeSpent)

		return result, nil
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

type StructurePostgreSQL struct {
	db *gorm.DB
}

func NewStructurePostgreSQL(db *gorm.DB) repositories.StructureRepository {
	return &StructurePostgreSQL{db: db}
}

func (s *StructurePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *StructurePostgreSQL) Create(ctx context.Context, tx *gorm.DB, structure *models.Structure) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Create(structure).Error
}

func (s *StructurePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Structure, error) {
	db := s.getDB(tx)
	var structure models.Structure
	if err := db.WithContext(ctx).First(&structure, id).Error; err != nil {
		return nil, err
	}
	return &structure, nil
}

func (s *StructurePostgreSQL) Update(ctx context.Context, tx *gorm.DB, structure *models.Structure) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Save(structure).Error
}

func (s *StructurePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := s.getDB(tx)
	return db.WithContext(ctx).Delete(&models.Structure{}, id).Error
}

func (s *StructurePostgreSQL) GetByLab(ctx context.Context, tx *gorm.DB, labID uint) ([]*models.Structure, error) {
	db := s.getDB(tx)
	var structures []*models.Structure
	if err := db.WithContext(ctx).
		Where("lab_id = ?", labID).
		Order("id ASC").
		Find(&structures).Error; err != nil {
		return nil, err
	}
	return structures, nil
}

func (s *StructurePostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Structure, error) {
	db := s.getDB(tx)
	if len(ids) == 0 {
		return nil, nil
	}
	var structures []*models.Structure
	if err := db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&structures).Error; err != nil {
		return nil, err
	}
	return structures, nil
}

func (s *StructurePostgreSQL) CountByLab(ctx context.Context, tx *gorm.DB, labID uint) (int64, error) {
	db := s.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.Structure{}).
		Where("lab_id = ?", labID).
		Count(&count).Error
	return count, err
}
