package repositories

import (
	"context"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"gorm.io/gorm"
)

// LabRepository interface for lab-specific operations
type LabRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, lab *models.Lab) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Lab, error)
	GetByIDWithStructures(ctx context.Context, tx *gorm.DB, id uint) (*models.Lab, error)
	Update(ctx context.Context, tx *gorm.DB, lab *models.Lab) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters LabFilters) ([]*models.Lab, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters LabFilters) ([]*models.Lab, int64, error)

	// Validation and checks
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	IsPublished(ctx context.Context, tx *gorm.DB, id uint) (bool, error)

	// Statistics
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*LabStats, error)
}

// StructureRepository interface for answer-key structure operations
type StructureRepository interface {
	Create(ctx context.Context, tx *gorm.DB, structure *models.Structure) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Structure, error)
	Update(ctx context.Context, tx *gorm.DB, structure *models.Structure) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// GetByLab returns the full answer key of a lab, ordered by ID.
	GetByLab(ctx context.Context, tx *gorm.DB, labID uint) ([]*models.Structure, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Structure, error)
	CountByLab(ctx context.Context, tx *gorm.DB, labID uint) (int64, error)
}
