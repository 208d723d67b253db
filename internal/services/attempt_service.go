package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tamabadger/anatoview-sub000/internal/grading"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/queue"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/Tamabadger/anatoview-sub000/internal/validator"
	"gorm.io/gorm"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher *queue.Publisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher *queue.Publisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) GetOrCreate(ctx context.Context, labID uint, studentID string) (*AttemptResponse, error) {
	lab, err := s.getPublishedLab(ctx, labID)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, labID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	if active != nil {
		return s.toAttemptResponse(active), nil
	}

	// No active attempt; open a fresh one
	var attempt *models.LabAttempt
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		count, err := txRepo.Attempt().CountByLabAndStudent(ctx, nil, labID, studentID)
		if err != nil {
			return fmt.Errorf("failed to count attempts: %w", err)
		}

		attempt = &models.LabAttempt{
			LabID:         lab.ID,
			StudentID:     studentID,
			AttemptNumber: int(count) + 1,
			Status:        models.AttemptNotStarted,
		}
		return txRepo.Attempt().Create(ctx, nil, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}

	s.logger.Info("Lab attempt created",
		"attempt_id", attempt.ID,
		"lab_id", labID,
		"student_id", studentID,
		"attempt_number", attempt.AttemptNumber)

	return s.toAttemptResponse(attempt), nil
}

// GetActive returns the student's active attempt without creating one.
func (s *attemptService) GetActive(ctx context.Context, labID uint, studentID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, labID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}
	return s.toAttemptResponse(attempt), nil
}

func (s *attemptService) Start(ctx context.Context, labID uint, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting lab attempt", "lab_id", labID, "student_id", studentID)

	if _, err := s.getPublishedLab(ctx, labID); err != nil {
		return nil, err
	}

	// Creation happens on first access, not here
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, labID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get active attempt: %w", err)
	}

	if attempt.Status == models.AttemptInProgress {
		s.logger.Info("Resuming in-progress attempt", "attempt_id", attempt.ID)
		return s.toAttemptResponse(attempt), nil
	}

	attempt.Status = models.AttemptInProgress
	attempt.StartedAt = timePtr(time.Now())
	if err := s.repo.Attempt().Update(ctx, s.db, attempt); err != nil {
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}

	s.logger.Info("Lab attempt started", "attempt_id", attempt.ID, "lab_id", labID, "student_id", studentID)
	return s.toAttemptResponse(attempt), nil
}

func (s *attemptService) SaveResponses(ctx context.Context, req *SaveResponsesRequest, studentID string) (*AttemptResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, err)
	}

	attempt, err := s.getOwnedAttempt(ctx, req.AttemptID, studentID, "save_responses")
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsFinalized() {
		return nil, &AttemptStateError{AttemptID: attempt.ID, Status: attempt.Status}
	}

	structures, err := s.repo.Structure().GetByLab(ctx, s.db, attempt.LabID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answer key: %w", err)
	}
	if err := checkStructureMembership(req.Responses, structures); err != nil {
		return nil, err
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// First write starts the clock
		if attempt.Status == models.AttemptNotStarted {
			attempt.Status = models.AttemptInProgress
			attempt.StartedAt = timePtr(time.Now())
			if err := txRepo.Attempt().Update(ctx, nil, attempt); err != nil {
				return fmt.Errorf("failed to start attempt: %w", err)
			}
		}

		responses := make([]*models.StructureResponse, len(req.Responses))
		for i, r := range req.Responses {
			responses[i] = &models.StructureResponse{
				AttemptID:       attempt.ID,
				StructureID:     r.StructureID,
				StudentAnswer:   r.Answer,
				ConfidenceLevel: r.ConfidenceLevel,
				HintsUsed:       r.HintsUsed,
				TimeSpent:       r.TimeSpent,
			}
		}
		return txRepo.Response().UpsertBatch(ctx, nil, responses)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save responses: %w", err)
	}

	s.logger.Info("Responses saved",
		"attempt_id", attempt.ID,
		"student_id", studentID,
		"responses_count", len(req.Responses))

	return s.GetByID(ctx, attempt.ID, studentID)
}

func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Submitting lab attempt",
		"attempt_id", req.AttemptID,
		"student_id", studentID,
		"responses_count", len(req.Responses))

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, err)
	}

	attempt, err := s.getOwnedAttempt(ctx, req.AttemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}
	if attempt.Status.IsFinalized() {
		return nil, &AttemptStateError{AttemptID: attempt.ID, Status: attempt.Status}
	}
	if attempt.Status == models.AttemptNotStarted {
		return nil, ErrAttemptNotStarted
	}

	lab, err := s.repo.Lab().GetByID(ctx, s.db, attempt.LabID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrLabNotFound
		}
		return nil, fmt.Errorf("failed to get lab: %w", err)
	}
	structures, err := s.repo.Structure().GetByLab(ctx, s.db, attempt.LabID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answer key: %w", err)
	}
	if err := checkStructureMembership(req.Responses, structures); err != nil {
		return nil, err
	}

	// Grade and finalize atomically; a mid-sequence failure rolls everything back
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if len(req.Responses) > 0 {
			final := make([]*models.StructureResponse, len(req.Responses))
			for i, r := range req.Responses {
				final[i] = &models.StructureResponse{
					AttemptID:       attempt.ID,
					StructureID:     r.StructureID,
					StudentAnswer:   r.Answer,
					ConfidenceLevel: r.ConfidenceLevel,
					HintsUsed:       r.HintsUsed,
					TimeSpent:       r.TimeSpent,
				}
			}
			if err := txRepo.Response().UpsertBatch(ctx, nil, final); err != nil {
				return fmt.Errorf("failed to save final responses: %w", err)
			}
		}

		responses, err := txRepo.Response().GetByAttempt(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to load responses: %w", err)
		}

		for _, response := range responses {
			key := answerKeyFor(findStructure(structures, response.StructureID), lab)
			result := grading.Grade(response.StudentAnswer, response.HintsUsed, key)

			correct := result.IsCorrect
			response.IsCorrect = &correct
			response.MatchType = models.MatchType(result.Match)
			response.PointsEarned = result.PointsEarned
			response.AutoGraded = true

			if err := txRepo.Response().Update(ctx, nil, response); err != nil {
				return fmt.Errorf("failed to persist grade for structure %d: %w", response.StructureID, err)
			}
		}

		totals := aggregateScores(lab, structures, responses)
		now := time.Now()
		attempt.Status = models.AttemptGraded
		attempt.SubmittedAt = &now
		attempt.GradedAt = &now
		attempt.Score = totals.Score
		attempt.Percentage = totals.Percentage
		if req.TimeSpent != nil {
			attempt.TimeSpent = *req.TimeSpent
		} else if attempt.StartedAt != nil {
			attempt.TimeSpent = int(now.Sub(*attempt.StartedAt).Seconds())
		}

		return txRepo.Attempt().Update(ctx, nil, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	s.logger.Info("Lab attempt graded",
		"attempt_id", attempt.ID,
		"student_id", studentID,
		"score", attempt.Score,
		"percentage", attempt.Percentage)

	// Passback is asynchronous; a queue outage must not fail the submit
	if s.publisher != nil {
		if err := s.publisher.EnqueueGradeSync(attempt.ID); err != nil {
			s.logger.Error("Failed to enqueue grade sync", "attempt_id", attempt.ID, "error", err)
		}
	}

	return s.GetByID(ctx, attempt.ID, studentID)
}

// ===== READS =====

func (s *attemptService) GetByID(ctx context.Context, attemptID uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != userID {
		staff, err := s.isStaff(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !staff {
			return nil, NewPermissionError(userID, attemptID, "attempt", "read", "not owner or insufficient permissions")
		}
	}

	return s.toAttemptResponse(attempt), nil
}

func (s *attemptService) ListByLab(ctx context.Context, labID uint, filters repositories.AttemptFilters, userID string) (*AttemptListResponse, error) {
	staff, err := s.isStaff(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, NewPermissionError(userID, labID, "lab", "view_attempts", "insufficient role permissions")
	}

	exists, err := s.repo.Lab().ExistsByID(ctx, s.db, labID)
	if err != nil {
		return nil, fmt.Errorf("failed to check lab: %w", err)
	}
	if !exists {
		return nil, ErrLabNotFound
	}

	attempts, total, err := s.repo.Attempt().GetByLab(ctx, s.db, labID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	items := make([]*AttemptResponse, len(attempts))
	for i, attempt := range attempts {
		items[i] = s.toAttemptResponse(attempt)
	}

	size := filters.Limit
	if size <= 0 {
		size = len(items)
	}
	page := 1
	if size > 0 {
		page = filters.Offset/size + 1
	}

	return &AttemptListResponse{
		Attempts: items,
		Total:    total,
		Page:     page,
		Size:     size,
	}, nil
}

// ===== INSTRUCTOR OPERATIONS =====

func (s *attemptService) Override(ctx context.Context, attemptID uint, req *OverrideScoreRequest, graderID string) (*AttemptResponse, error) {
	s.logger.Info("Applying instructor override",
		"attempt_id", attemptID,
		"grader_id", graderID,
		"overrides_count", len(req.Overrides))

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidationFailed, err)
	}

	staff, err := s.isStaff(ctx, graderID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, NewPermissionError(graderID, attemptID, "attempt", "override_grade", "insufficient role permissions")
	}

	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if !attempt.Status.IsFinalized() {
		return nil, ErrAttemptNotGraded
	}

	lab, err := s.repo.Lab().GetByID(ctx, s.db, attempt.LabID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lab: %w", err)
	}
	structures, err := s.repo.Structure().GetByLab(ctx, s.db, attempt.LabID)
	if err != nil {
		return nil, fmt.Errorf("failed to load answer key: %w", err)
	}

	if verr := validateOverrides(req.Overrides, structures); len(verr) > 0 {
		return nil, verr
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		for _, override := range req.Overrides {
			response, err := txRepo.Response().GetByAttemptAndStructure(ctx, nil, attempt.ID, override.StructureID)
			if err != nil {
				if repositories.IsNotFoundError(err) {
					// Overrides adjust recorded answers only
					return fmt.Errorf("%w: structure %d", ErrResponseNotFound, override.StructureID)
				}
				return fmt.Errorf("failed to load response: %w", err)
			}

			response.InstructorOverride = override.Points
			if err := txRepo.Response().Update(ctx, nil, response); err != nil {
				return fmt.Errorf("failed to persist override: %w", err)
			}
		}

		responses, err := txRepo.Response().GetByAttempt(ctx, nil, attempt.ID)
		if err != nil {
			return fmt.Errorf("failed to load responses: %w", err)
		}

		totals := aggregateScores(lab, structures, responses)
		attempt.Score = totals.Score
		attempt.Percentage = totals.Percentage
		attempt.Status = models.AttemptGraded
		attempt.GradedAt = timePtr(time.Now())
		if req.Feedback != nil {
			attempt.InstructorFeedback = req.Feedback
		}

		return txRepo.Attempt().Update(ctx, nil, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply override: %w", err)
	}

	s.logger.Info("Instructor override applied",
		"attempt_id", attempt.ID,
		"grader_id", graderID,
		"score", attempt.Score)

	// Regraded scores need redelivery
	if s.publisher != nil {
		if err := s.publisher.EnqueueGradeSync(attempt.ID); err != nil {
			s.logger.Error("Failed to enqueue grade sync after override", "attempt_id", attempt.ID, "error", err)
		}
	}

	return s.GetByID(ctx, attempt.ID, graderID)
}
