package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
)

// ===== SENTINEL ERRORS =====

var (
	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptAccessDenied     = errors.New("attempt access denied")
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptNotStarted       = errors.New("attempt not started")
	ErrAttemptNotGraded        = errors.New("attempt not graded")

	// Response errors
	ErrResponseNotFound = errors.New("response not found")

	// Lab errors
	ErrLabNotFound      = errors.New("lab not found")
	ErrLabNotPublished  = errors.New("lab not published")
	ErrStructureUnknown = errors.New("structure does not belong to lab")

	// Sync errors
	ErrSyncLogNotFound = errors.New("sync log not found")

	// Generic errors
	ErrValidationFailed = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("resource not found")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("resource conflict")
	ErrUserNotFound     = errors.New("user not found")

	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// ===== TYPED ERRORS =====

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects field-level validation failures for one request.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e))
	for i, ve := range e {
		messages[i] = ve.Error()
	}
	return strings.Join(messages, "; ")
}

// BusinessRuleError signals a domain rule violation that is not a plain
// field-validation problem, e.g. an override outside the structure's point
// range.
type BusinessRuleError struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string, context any) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message, Context: context}
}

// AttemptStateError reports a write rejected because the attempt is
// finalized. It carries the status so handlers can name it to the student.
type AttemptStateError struct {
	AttemptID uint                 `json:"attempt_id"`
	Status    models.AttemptStatus `json:"status"`
}

func (e *AttemptStateError) Error() string {
	return fmt.Sprintf("attempt %d is already %s", e.AttemptID, e.Status)
}

func (e *AttemptStateError) Unwrap() error { return ErrAttemptAlreadySubmitted }

// PermissionError carries who tried what on which resource.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}
