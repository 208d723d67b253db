package repositories

import (
	"time"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type LabFilters struct {
	Published *bool      `json:"published"`
	CreatedBy *string    `json:"created_by"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "created_at", "title"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	StudentID *string               `json:"student_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "score", "status"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type SyncLogFilters struct {
	Status   *models.SyncStatus `json:"status"`
	DateFrom *time.Time         `json:"date_from"`
	DateTo   *time.Time         `json:"date_to"`
	Limit    int                `json:"limit"`
	Offset   int                `json:"offset"`
}

// ===== SHARED STATISTICS STRUCTS =====

type LabStats struct {
	TotalAttempts     int                          `json:"total_attempts"`
	GradedAttempts    int                          `json:"graded_attempts"`
	StatusBreakdown   map[models.AttemptStatus]int `json:"status_breakdown"`
	AverageScore      float64                      `json:"average_score"`
	AveragePercentage float64                      `json:"average_percentage"`
	AverageTimeSpent  int                          `json:"average_time_spent"`
}

type SyncStats struct {
	TotalDeliveries int `json:"total_deliveries"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
	Errored         int `json:"errored"`
}
