package models

import (
	"reflect"
	"strings"
	"testing"
)

// Concurrent first requests race the count-then-create path; the composite
// unique index is what keeps attempt numbers from colliding. Guard the
// migration tags so it cannot silently disappear.
func TestLabAttemptNumberUniquePerLabAndStudent(t *testing.T) {
	typ := reflect.TypeOf(LabAttempt{})
	for _, name := range []string{"LabID", "StudentID", "AttemptNumber"} {
		field, ok := typ.FieldByName(name)
		if !ok {
			t.Fatalf("field %s missing from LabAttempt", name)
		}
		if !strings.Contains(field.Tag.Get("gorm"), "uniqueIndex:idx_lab_student_attempt") {
			t.Errorf("%s is not part of the idx_lab_student_attempt unique index", name)
		}
	}
}

func TestAttemptStatusPredicates(t *testing.T) {
	tests := []struct {
		status    AttemptStatus
		active    bool
		finalized bool
	}{
		{AttemptNotStarted, true, false},
		{AttemptInProgress, true, false},
		{AttemptSubmitted, false, true},
		{AttemptGraded, false, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsActive(); got != tt.active {
			t.Errorf("%s.IsActive() = %v, want %v", tt.status, got, tt.active)
		}
		if got := tt.status.IsFinalized(); got != tt.finalized {
			t.Errorf("%s.IsFinalized() = %v, want %v", tt.status, got, tt.finalized)
		}
	}
}
