package postgres

import (
	"context"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResponsePostgreSQL struct {
	db *gorm.DB
}

func NewResponsePostgreSQL(db *gorm.DB) repositories.ResponseRepository {
	return &ResponsePostgreSQL{db: db}
}

func (r *ResponsePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// responseUpsertColumns are the answer fields replaced when a student
// re-answers a structure. Grading columns are left alone; the grader writes
// those separately.
var responseUpsertColumns = []string{
	"student_answer", "confidence_level", "hints_used", "time_spent", "updated_at",
}

func (r *ResponsePostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, response *models.StructureResponse) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "structure_id"}},
			DoUpdates: clause.AssignmentColumns(responseUpsertColumns),
		}).
		Create(response).Error
}

func (r *ResponsePostgreSQL) UpsertBatch(ctx context.Context, tx *gorm.DB, responses []*models.StructureResponse) error {
	if len(responses) == 0 {
		return nil
	}
	db := r.getDB(tx)
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "structure_id"}},
			DoUpdates: clause.AssignmentColumns(responseUpsertColumns),
		}).
		Create(&responses).Error
}

func (r *ResponsePostgreSQL) Update(ctx context.Context, tx *gorm.DB, response *models.StructureResponse) error {
	db := r.getDB(tx)
	return db.WithContext(ctx).Save(response).Error
}

func (r *ResponsePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StructureResponse, error) {
	db := r.getDB(tx)
	var response models.StructureResponse
	if err := db.WithContext(ctx).First(&response, id).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *ResponsePostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StructureResponse, error) {
	db := r.getDB(tx)
	var responses []*models.StructureResponse
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("structure_id ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}

func (r *ResponsePostgreSQL) GetByAttemptAndStructure(ctx context.Context, tx *gorm.DB, attemptID, structureID uint) (*models.StructureResponse, error) {
	db := r.getDB(tx)
	var response models.StructureResponse
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND structure_id = ?", attemptID, structureID).
		First(&response).Error; err != nil {
		return nil, err
	}
	return &response, nil
}

func (r *ResponsePostgreSQL) CountCorrectByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	db := r.getDB(tx)
	var count int64
	err := db.WithContext(ctx).
		Model(&models.StructureResponse{}).
		Where("attempt_id = ? AND is_correct = ?", attemptID, true).
		Count(&count).Error
	return count, err
}
