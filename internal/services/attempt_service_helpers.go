package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Tamabadger/anatoview-sub000/internal/grading"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
)

func (s *attemptService) toAttemptResponse(attempt *models.LabAttempt) *AttemptResponse {
	return &AttemptResponse{
		LabAttempt: attempt,
		CanSubmit:  attempt.Status == models.AttemptInProgress,
		CanResume:  attempt.Status == models.AttemptInProgress,
	}
}

// getPublishedLab loads a lab students are allowed to attempt. Unpublished
// labs are indistinguishable from missing ones.
func (s *attemptService) getPublishedLab(ctx context.Context, labID uint) (*models.Lab, error) {
	lab, err := s.repo.Lab().GetByID(ctx, s.db, labID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrLabNotFound
		}
		return nil, fmt.Errorf("failed to get lab: %w", err)
	}
	if !lab.Published {
		return nil, ErrLabNotPublished
	}
	return lab, nil
}

func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID uint, studentID, action string) (*models.LabAttempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", action, "not owned by student")
	}
	return attempt, nil
}

func (s *attemptService) isStaff(ctx context.Context, userID string) (bool, error) {
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

// checkStructureMembership rejects responses targeting structures outside the
// attempt's lab.
func checkStructureMembership(responses []SubmitResponseRequest, structures []*models.Structure) error {
	known := make(map[uint]struct{}, len(structures))
	for _, structure := range structures {
		known[structure.ID] = struct{}{}
	}
	for _, r := range responses {
		if _, ok := known[r.StructureID]; !ok {
			return NewBusinessRuleError("structure_membership",
				fmt.Sprintf("structure %d does not belong to this lab", r.StructureID), r.StructureID)
		}
	}
	return nil
}

// validateOverrides enforces the [0, points possible] bound per structure.
func validateOverrides(overrides []ResponseOverride, structures []*models.Structure) ValidationErrors {
	pointsByID := make(map[uint]float64, len(structures))
	for _, structure := range structures {
		pointsByID[structure.ID] = structure.Points
	}

	var errs ValidationErrors
	for _, override := range overrides {
		possible, ok := pointsByID[override.StructureID]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   "structure_id",
				Message: fmt.Sprintf("structure %d does not belong to this lab", override.StructureID),
				Value:   override.StructureID,
			})
			continue
		}
		if override.Points != nil && (*override.Points < 0 || *override.Points > possible) {
			errs = append(errs, ValidationError{
				Field:   "points",
				Message: fmt.Sprintf("override for structure %d must be between 0 and %g", override.StructureID, possible),
				Value:   *override.Points,
			})
		}
	}
	return errs
}

func findStructure(structures []*models.Structure, id uint) *models.Structure {
	for _, structure := range structures {
		if structure.ID == id {
			return structure
		}
	}
	return nil
}

// answerKeyFor builds the grading rubric for one structure. A nil structure
// yields an empty key, which grades any answer as incorrect.
func answerKeyFor(structure *models.Structure, lab *models.Lab) grading.AnswerKey {
	if structure == nil {
		return grading.AnswerKey{}
	}
	key := grading.AnswerKey{
		Name:               structure.Name,
		Points:             structure.Points,
		HintPenaltyPercent: lab.HintPenaltyPercent,
		Aliases:            decodeAliases(structure.Aliases),
	}
	if structure.LatinName != nil {
		key.LatinName = *structure.LatinName
	}
	return key
}

func decodeAliases(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var aliases []string
	if err := json.Unmarshal(raw, &aliases); err != nil {
		return nil
	}
	return aliases
}

func timePtr(t time.Time) *time.Time {
	return &t
}
