package repositories

import (
	"context"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"gorm.io/gorm"
)

// AttemptRepository interface for attempt lifecycle operations
type AttemptRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, attempt *models.LabAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LabAttempt, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.LabAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.LabAttempt) error

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.LabAttempt, int64, error)
	GetByLab(ctx context.Context, tx *gorm.DB, labID uint, filters AttemptFilters) ([]*models.LabAttempt, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.LabAttempt, int64, error)
	GetByLabAndStudent(ctx context.Context, tx *gorm.DB, labID uint, studentID string) ([]*models.LabAttempt, error)
	GetByStatus(ctx context.Context, tx *gorm.DB, status models.AttemptStatus, limit, offset int) ([]*models.LabAttempt, error)

	// Lifecycle queries
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (*models.LabAttempt, error)
	HasActiveAttempt(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (bool, error)
	CountByLabAndStudent(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error
}

// ResponseRepository interface for per-structure answer operations
type ResponseRepository interface {
	// Upsert writes the response for its (attempt, structure) pair, replacing
	// any earlier answer.
	Upsert(ctx context.Context, tx *gorm.DB, response *models.StructureResponse) error
	UpsertBatch(ctx context.Context, tx *gorm.DB, responses []*models.StructureResponse) error
	Update(ctx context.Context, tx *gorm.DB, response *models.StructureResponse) error

	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StructureResponse, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StructureResponse, error)
	GetByAttemptAndStructure(ctx context.Context, tx *gorm.DB, attemptID, structureID uint) (*models.StructureResponse, error)
	CountCorrectByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error)
}

// SyncLogRepository interface for the append-only passback audit trail
type SyncLogRepository interface {
	// Append inserts one delivery record. Log rows are never updated.
	Append(ctx context.Context, tx *gorm.DB, log *models.GradeSyncLog) error

	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint, filters SyncLogFilters) ([]*models.GradeSyncLog, int64, error)
	GetLatestByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.GradeSyncLog, error)
	GetStats(ctx context.Context, tx *gorm.DB, labID uint) (*SyncStats, error)
}
