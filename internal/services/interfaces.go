package services

import (
	"context"
	"time"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
)

// ===== REQUEST/RESPONSE DTOs =====

// ===== ATTEMPT RELATED DTOs =====

type StartAttemptRequest struct {
	LabID uint `json:"lab_id" validate:"required"`
}

type SubmitResponseRequest struct {
	StructureID     uint    `json:"structure_id" validate:"required"`
	Answer          *string `json:"answer" validate:"omitempty,answer_text"`
	HintsUsed       int     `json:"hints_used" validate:"hint_count"`
	ConfidenceLevel int     `json:"confidence_level" validate:"confidence_level"`
	TimeSpent       int     `json:"time_spent" validate:"min=0"`
}

type SaveResponsesRequest struct {
	AttemptID uint                    `json:"attempt_id" validate:"required"`
	Responses []SubmitResponseRequest `json:"responses" validate:"required,min=1,max=200,dive"`
}

type SubmitAttemptRequest struct {
	AttemptID uint                    `json:"attempt_id" validate:"required"`
	Responses []SubmitResponseRequest `json:"responses" validate:"omitempty,max=200,dive"`
	TimeSpent *int                    `json:"time_spent" validate:"omitempty,min=0"`
}

type ResponseOverride struct {
	StructureID uint `json:"structure_id" validate:"required"`
	// Points replaces the autograded value; nil clears a prior override.
	Points *float64 `json:"points"`
}

type OverrideScoreRequest struct {
	Overrides []ResponseOverride `json:"overrides" validate:"omitempty,max=200,dive"`
	Feedback  *string            `json:"feedback" validate:"omitempty,max=2000"`
}

type AttemptResponse struct {
	*models.LabAttempt
	CanSubmit bool `json:"can_submit"`
	CanResume bool `json:"can_resume"`
}

type AttemptListResponse struct {
	Attempts []*AttemptResponse `json:"attempts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

// ===== GRADE SYNC RELATED DTOs =====

// SyncOutcome is the result of one delivery attempt. Retryable marks
// transient failures worth another try; terminal outcomes carry it false.
type SyncOutcome struct {
	AttemptID uint              `json:"attempt_id"`
	Status    models.SyncStatus `json:"status"`
	Retryable bool              `json:"retryable"`
	Detail    string            `json:"detail,omitempty"`
	SyncedAt  time.Time         `json:"synced_at"`
}

type BulkSyncResult struct {
	LabID    uint `json:"lab_id"`
	Total    int  `json:"total"`
	Enqueued int  `json:"enqueued"`
}

type SyncLogListResponse struct {
	Entries []*models.GradeSyncLog `json:"entries"`
	Total   int64                  `json:"total"`
}

// ===== EXPORT RELATED DTOs =====

type GradeExport struct {
	FileName string `json:"file_name"`
	Content  []byte `json:"-"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	// Student operations
	GetOrCreate(ctx context.Context, labID uint, studentID string) (*AttemptResponse, error)
	// GetActive returns the active attempt without creating one; absence is
	// ErrAttemptNotFound.
	GetActive(ctx context.Context, labID uint, studentID string) (*AttemptResponse, error)
	Start(ctx context.Context, labID uint, studentID string) (*AttemptResponse, error)
	SaveResponses(ctx context.Context, req *SaveResponsesRequest, studentID string) (*AttemptResponse, error)
	Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error)

	// Shared reads
	GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error)

	// Instructor operations
	ListByLab(ctx context.Context, labID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error)
	Override(ctx context.Context, attemptID uint, req *OverrideScoreRequest, graderID string) (*AttemptResponse, error)
}

type GradeSyncService interface {
	// Enqueue publishes one passback job for a graded attempt.
	Enqueue(ctx context.Context, attemptID uint, userID string) error

	// EnqueueLab publishes jobs for every graded attempt of the lab.
	EnqueueLab(ctx context.Context, labID uint, userID string) (*BulkSyncResult, error)

	// Deliver performs one synchronous delivery and logs its outcome.
	Deliver(ctx context.Context, attemptID uint, userID string) (*SyncOutcome, error)

	// ProcessSyncJob is the worker entry point. A returned error requeues
	// the job; terminal outcomes return nil.
	ProcessSyncJob(ctx context.Context, attemptID uint) error

	GetSyncLog(ctx context.Context, attemptID uint, filters repositories.SyncLogFilters, userID string) (*SyncLogListResponse, error)
}

type ExportService interface {
	// ExportLabGrades renders the lab's graded attempts as an xlsx workbook.
	ExportLabGrades(ctx context.Context, labID uint, userID string) (*GradeExport, error)
}

// ===== SERVICE MANAGER =====

// ServiceManager provides access to all services
type ServiceManager interface {
	Attempt() AttemptService
	GradeSync() GradeSyncService
	Export() ExportService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
