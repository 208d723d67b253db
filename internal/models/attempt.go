package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
)

// IsFinalized reports whether the attempt can no longer accept responses.
func (s AttemptStatus) IsFinalized() bool {
	return s == AttemptSubmitted || s == AttemptGraded
}

// IsActive reports whether the attempt counts against the one-active-attempt
// invariant for its (lab, student) pair.
func (s AttemptStatus) IsActive() bool {
	return s == AttemptNotStarted || s == AttemptInProgress
}

type MatchType string

const (
	MatchUngraded  MatchType = "ungraded"
	MatchExact     MatchType = "exact"
	MatchFuzzy     MatchType = "fuzzy"
	MatchIncorrect MatchType = "incorrect"
)

// LabAttempt is one student's timed try at a lab. Exactly one attempt per
// (lab, student) may be in a non-finalized status at a time; attempt_number
// is 1-based and never repeats for the pair.
type LabAttempt struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	LabID         uint          `json:"lab_id" gorm:"not null;index:idx_lab_student;uniqueIndex:idx_lab_student_attempt"`
	StudentID     string        `json:"student_id" gorm:"not null;index:idx_lab_student;size:255;uniqueIndex:idx_lab_student_attempt"`
	AttemptNumber int           `json:"attempt_number" gorm:"not null;uniqueIndex:idx_lab_student_attempt"`
	Status        AttemptStatus `json:"status" gorm:"default:not_started;index"`

	// Timing
	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at"`
	TimeSpent   int        `json:"time_spent"` // seconds

	// Scoring
	Score      float64 `json:"score"` // scaled to lab.MaxPoints
	Percentage float64 `json:"percentage"`

	InstructorFeedback *string `json:"instructor_feedback" gorm:"type:text"`

	// Opaque outcome reference minted by the LTI launch; nil when the
	// session was never linked to the external grade book.
	CanvasOutcomeRef *string `json:"canvas_outcome_ref" gorm:"size:500"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Lab       Lab                 `json:"lab" gorm:"foreignKey:LabID"`
	Responses []StructureResponse `json:"responses" gorm:"foreignKey:AttemptID"`
}

func (LabAttempt) TableName() string {
	return "lab_attempts"
}

// StructureResponse is one student answer to one structure within one attempt.
// Unique per (attempt, structure); later writes replace earlier ones.
type StructureResponse struct {
	ID          uint `json:"id" gorm:"primaryKey"`
	AttemptID   uint `json:"attempt_id" gorm:"not null;uniqueIndex:idx_attempt_structure"`
	StructureID uint `json:"structure_id" gorm:"not null;uniqueIndex:idx_attempt_structure"`

	StudentAnswer   *string `json:"student_answer" gorm:"type:text"`
	ConfidenceLevel int     `json:"confidence_level"`
	HintsUsed       int     `json:"hints_used"`
	TimeSpent       int     `json:"time_spent"` // seconds

	// Grading
	IsCorrect          *bool     `json:"is_correct"` // nil until graded
	MatchType          MatchType `json:"match_type" gorm:"default:ungraded"`
	PointsEarned       float64   `json:"points_earned"`
	AutoGraded         bool      `json:"auto_graded"`
	InstructorOverride *float64  `json:"instructor_override"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Attempt   LabAttempt `json:"-" gorm:"foreignKey:AttemptID"`
	Structure Structure  `json:"structure" gorm:"foreignKey:StructureID"`
}

func (StructureResponse) TableName() string {
	return "structure_responses"
}

// EffectivePoints is the value the aggregator sums: the instructor override
// when present, otherwise the autograded points.
func (r *StructureResponse) EffectivePoints() float64 {
	if r.InstructorOverride != nil {
		return *r.InstructorOverride
	}
	return r.PointsEarned
}

type SyncStatus string

const (
	SyncSkipped SyncStatus = "skipped"
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	SyncError   SyncStatus = "error"
)

// GradeSyncLog is the append-only audit trail of grade-passback deliveries.
// One row per delivery attempt, retries included; rows are never updated.
type GradeSyncLog struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	AttemptID      uint           `json:"attempt_id" gorm:"not null;index"`
	CanvasStatus   SyncStatus     `json:"canvas_status" gorm:"not null;size:20"`
	CanvasResponse datatypes.JSON `json:"canvas_response" gorm:"type:jsonb"`
	SyncedAt       time.Time      `json:"synced_at" gorm:"not null"`
}

func (GradeSyncLog) TableName() string {
	return "grade_sync_logs"
}
