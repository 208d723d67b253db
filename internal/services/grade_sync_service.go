package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tamabadger/anatoview-sub000/internal/canvas"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/queue"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"gorm.io/gorm"
)

type gradeSyncService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	canvas    canvas.Client
	publisher *queue.Publisher
}

func NewGradeSyncService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, canvasClient canvas.Client, publisher *queue.Publisher) GradeSyncService {
	return &gradeSyncService{
		repo:      repo,
		db:        db,
		logger:    logger,
		canvas:    canvasClient,
		publisher: publisher,
	}
}

// ===== ENQUEUE OPERATIONS =====

func (s *gradeSyncService) Enqueue(ctx context.Context, attemptID uint, userID string) error {
	staff, err := s.isStaff(ctx, userID)
	if err != nil {
		return err
	}
	if !staff {
		return NewPermissionError(userID, attemptID, "attempt", "sync_grade", "insufficient role permissions")
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.Status != models.AttemptGraded {
		return ErrAttemptNotGraded
	}

	if err := s.publisher.EnqueueGradeSync(attemptID); err != nil {
		return fmt.Errorf("failed to enqueue grade sync: %w", err)
	}

	s.logger.Info("Grade sync enqueued", "attempt_id", attemptID, "requested_by", userID)
	return nil
}

func (s *gradeSyncService) EnqueueLab(ctx context.Context, labID uint, userID string) (*BulkSyncResult, error) {
	staff, err := s.isStaff(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, NewPermissionError(userID, labID, "lab", "sync_grades", "insufficient role permissions")
	}

	exists, err := s.repo.Lab().ExistsByID(ctx, s.db, labID)
	if err != nil {
		return nil, fmt.Errorf("failed to check lab: %w", err)
	}
	if !exists {
		return nil, ErrLabNotFound
	}

	graded := models.AttemptGraded
	attempts, total, err := s.repo.Attempt().GetByLab(ctx, s.db, labID, repositories.AttemptFilters{Status: &graded})
	if err != nil {
		return nil, fmt.Errorf("failed to list graded attempts: %w", err)
	}

	result := &BulkSyncResult{LabID: labID, Total: int(total)}
	for _, attempt := range attempts {
		if err := s.publisher.EnqueueGradeSync(attempt.ID); err != nil {
			s.logger.Error("Failed to enqueue grade sync", "attempt_id", attempt.ID, "error", err)
			continue
		}
		result.Enqueued++
	}

	s.logger.Info("Bulk grade sync enqueued",
		"lab_id", labID,
		"requested_by", userID,
		"enqueued", result.Enqueued,
		"total", result.Total)

	return result, nil
}

// ===== DELIVERY =====

func (s *gradeSyncService) Deliver(ctx context.Context, attemptID uint, userID string) (*SyncOutcome, error) {
	staff, err := s.isStaff(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, NewPermissionError(userID, attemptID, "attempt", "sync_grade", "insufficient role permissions")
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.Status != models.AttemptGraded {
		return nil, ErrAttemptNotGraded
	}

	return s.deliver(ctx, attempt)
}

// ProcessSyncJob is the worker entry point. Returning an error requeues the
// job, so only retryable outcomes propagate one.
func (s *gradeSyncService) ProcessSyncJob(ctx context.Context, attemptID uint) error {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// The attempt is gone; retrying cannot bring it back
			s.logger.Warn("Sync job for unknown attempt dropped", "attempt_id", attemptID)
			return nil
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	outcome, err := s.deliver(ctx, attempt)
	if err != nil {
		return err
	}
	if outcome.Retryable {
		return fmt.Errorf("grade delivery for attempt %d failed: %s", attemptID, outcome.Detail)
	}
	return nil
}

// deliver performs one passback and appends exactly one audit row for its
// outcome. The returned error only covers infrastructure faults that prevent
// an outcome from being recorded.
func (s *gradeSyncService) deliver(ctx context.Context, attempt *models.LabAttempt) (*SyncOutcome, error) {
	if attempt.Status != models.AttemptGraded {
		return s.recordOutcome(ctx, attempt.ID, models.SyncError, false,
			fmt.Sprintf("attempt is %s, not graded", attempt.Status), nil)
	}

	if attempt.CanvasOutcomeRef == nil || *attempt.CanvasOutcomeRef == "" {
		return s.recordOutcome(ctx, attempt.ID, models.SyncSkipped, false,
			"attempt has no outcome reference", nil)
	}

	student, err := s.repo.User().GetByID(ctx, attempt.StudentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return s.recordOutcome(ctx, attempt.ID, models.SyncSkipped, false,
				"student not found in identity provider", nil)
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	if student.CanvasUserID == "" {
		return s.recordOutcome(ctx, attempt.ID, models.SyncSkipped, false,
			"student has no grade-book identity", nil)
	}

	lab, err := s.repo.Lab().GetByID(ctx, s.db, attempt.LabID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lab: %w", err)
	}

	result, err := s.canvas.PostScore(ctx, *attempt.CanvasOutcomeRef, canvas.Score{
		UserID:       student.CanvasUserID,
		ScoreGiven:   attempt.Score,
		ScoreMaximum: lab.MaxPoints,
	})
	if err != nil {
		// Transport failure; the platform never answered
		return s.recordOutcome(ctx, attempt.ID, models.SyncError, true, err.Error(), nil)
	}

	if !result.Accepted() {
		return s.recordOutcome(ctx, attempt.ID, models.SyncFailed, false,
			fmt.Sprintf("platform returned %d", result.StatusCode), result)
	}

	return s.recordOutcome(ctx, attempt.ID, models.SyncSuccess, false, "", result)
}

// recordOutcome appends the audit row and builds the outcome. Rows are never
// updated; retries append their own.
func (s *gradeSyncService) recordOutcome(ctx context.Context, attemptID uint, status models.SyncStatus, retryable bool, detail string, result *canvas.DeliveryResult) (*SyncOutcome, error) {
	now := time.Now()
	entry := &models.GradeSyncLog{
		AttemptID:      attemptID,
		CanvasStatus:   status,
		CanvasResponse: encodeSyncDiagnostic(detail, result),
		SyncedAt:       now,
	}
	if err := s.repo.SyncLog().Append(ctx, s.db, entry); err != nil {
		return nil, fmt.Errorf("failed to append sync log: %w", err)
	}

	level := slog.LevelInfo
	if status == models.SyncFailed || status == models.SyncError {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "Grade sync outcome recorded",
		"attempt_id", attemptID,
		"status", string(status),
		"retryable", retryable,
		"detail", detail)

	return &SyncOutcome{
		AttemptID: attemptID,
		Status:    status,
		Retryable: retryable,
		Detail:    detail,
		SyncedAt:  now,
	}, nil
}

func encodeSyncDiagnostic(detail string, result *canvas.DeliveryResult) []byte {
	diag := map[string]any{}
	if detail != "" {
		diag["detail"] = detail
	}
	if result != nil {
		diag["status_code"] = result.StatusCode
		if len(result.Body) > 0 {
			diag["body"] = result.Body
		}
	}
	if len(diag) == 0 {
		return nil
	}
	raw, err := json.Marshal(diag)
	if err != nil {
		return nil
	}
	return raw
}

// ===== AUDIT TRAIL =====

func (s *gradeSyncService) GetSyncLog(ctx context.Context, attemptID uint, filters repositories.SyncLogFilters, userID string) (*SyncLogListResponse, error) {
	staff, err := s.isStaff(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, NewPermissionError(userID, attemptID, "attempt", "view_sync_log", "insufficient role permissions")
	}

	if _, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	entries, total, err := s.repo.SyncLog().GetByAttempt(ctx, s.db, attemptID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync log: %w", err)
	}

	return &SyncLogListResponse{Entries: entries, Total: total}, nil
}

func (s *gradeSyncService) isStaff(ctx context.Context, userID string) (bool, error) {
	instructor, err := s.repo.User().HasRole(ctx, userID, models.RoleInstructor)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	if instructor {
		return true, nil
	}
	admin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return admin, nil
}
