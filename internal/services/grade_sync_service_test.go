package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/Tamabadger/anatoview-sub000/internal/canvas"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/queue"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
)

func seedGradedAttempt(repo *fakeRepo, outcomeRef *string, canvasUserID string) *models.LabAttempt {
	repo.labs[1] = &models.Lab{ID: 1, Title: "Heart Lab", MaxPoints: 100, Published: true}
	repo.users["student-1"] = &models.User{ID: "student-1", Role: models.RoleStudent, CanvasUserID: canvasUserID}
	repo.users["teacher-1"] = &models.User{ID: "teacher-1", Role: models.RoleInstructor}

	now := time.Now()
	attempt := &models.LabAttempt{
		ID:               10,
		LabID:            1,
		StudentID:        "student-1",
		AttemptNumber:    1,
		Status:           models.AttemptGraded,
		Score:            85.5,
		Percentage:       85.5,
		SubmittedAt:      &now,
		GradedAt:         &now,
		CanvasOutcomeRef: outcomeRef,
	}
	repo.attempts[attempt.ID] = attempt
	return attempt
}

func strPtr(s string) *string { return &s }

func TestProcessSyncJob_Success(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	cv := &fakeCanvas{result: &canvas.DeliveryResult{StatusCode: 200}}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	if err := svc.ProcessSyncJob(context.Background(), attempt.ID); err != nil {
		t.Fatalf("ProcessSyncJob: %v", err)
	}

	if len(cv.posted) != 1 {
		t.Fatalf("posted %d scores, want 1", len(cv.posted))
	}
	score := cv.posted[0]
	if score.UserID != "canvas-7" {
		t.Errorf("userId = %q, want canvas-7", score.UserID)
	}
	if score.ScoreGiven != 85.5 || score.ScoreMaximum != 100 {
		t.Errorf("score = %v/%v, want 85.5/100", score.ScoreGiven, score.ScoreMaximum)
	}

	if len(repo.syncLogs) != 1 {
		t.Fatalf("sync log rows = %d, want 1", len(repo.syncLogs))
	}
	if repo.syncLogs[0].CanvasStatus != models.SyncSuccess {
		t.Errorf("status = %s, want success", repo.syncLogs[0].CanvasStatus)
	}
}

func TestProcessSyncJob_SkippedWithoutOutcomeRef(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, nil, "canvas-7")
	cv := &fakeCanvas{result: &canvas.DeliveryResult{StatusCode: 200}}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	if err := svc.ProcessSyncJob(context.Background(), attempt.ID); err != nil {
		t.Fatalf("ProcessSyncJob: %v", err)
	}

	if len(cv.posted) != 0 {
		t.Errorf("posted %d scores, want 0", len(cv.posted))
	}
	if len(repo.syncLogs) != 1 || repo.syncLogs[0].CanvasStatus != models.SyncSkipped {
		t.Fatalf("want one skipped row, got %+v", repo.syncLogs)
	}
}

func TestProcessSyncJob_SkippedWithoutCanvasUser(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "")
	cv := &fakeCanvas{result: &canvas.DeliveryResult{StatusCode: 200}}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	if err := svc.ProcessSyncJob(context.Background(), attempt.ID); err != nil {
		t.Fatalf("ProcessSyncJob: %v", err)
	}

	if len(cv.posted) != 0 {
		t.Errorf("posted %d scores, want 0", len(cv.posted))
	}
	if len(repo.syncLogs) != 1 || repo.syncLogs[0].CanvasStatus != models.SyncSkipped {
		t.Fatalf("want one skipped row, got %+v", repo.syncLogs)
	}
}

func TestProcessSyncJob_PlatformRejectionIsTerminal(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	cv := &fakeCanvas{result: &canvas.DeliveryResult{StatusCode: 422}}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	if err := svc.ProcessSyncJob(context.Background(), attempt.ID); err != nil {
		t.Fatalf("rejection must not requeue the job, got %v", err)
	}

	if len(repo.syncLogs) != 1 || repo.syncLogs[0].CanvasStatus != models.SyncFailed {
		t.Fatalf("want one failed row, got %+v", repo.syncLogs)
	}
}

func TestProcessSyncJob_TransportErrorIsRetryable(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	cv := &fakeCanvas{err: errors.New("connection refused")}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	err := svc.ProcessSyncJob(context.Background(), attempt.ID)
	if err == nil {
		t.Fatal("transport failure must requeue the job")
	}

	if len(repo.syncLogs) != 1 || repo.syncLogs[0].CanvasStatus != models.SyncError {
		t.Fatalf("want one error row, got %+v", repo.syncLogs)
	}
}

func TestProcessSyncJob_UnknownAttemptDropped(t *testing.T) {
	repo := newFakeRepo()
	cv := &fakeCanvas{}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	if err := svc.ProcessSyncJob(context.Background(), 9999); err != nil {
		t.Fatalf("missing attempt must not requeue, got %v", err)
	}
	if len(repo.syncLogs) != 0 {
		t.Errorf("no audit row expected for unknown attempt, got %d", len(repo.syncLogs))
	}
}

func TestProcessSyncJob_EveryRetryAppendsARow(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	cv := &fakeCanvas{err: errors.New("connection refused")}
	svc := NewGradeSyncService(repo, nil, testLogger(), cv, nil)

	for i := 0; i < 3; i++ {
		if err := svc.ProcessSyncJob(context.Background(), attempt.ID); err == nil {
			t.Fatal("expected retryable error")
		}
	}
	if len(repo.syncLogs) != 3 {
		t.Fatalf("sync log rows = %d, want 3", len(repo.syncLogs))
	}
}

func TestDeliver_RequiresGradedAttempt(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	attempt.Status = models.AttemptInProgress
	svc := NewGradeSyncService(repo, nil, testLogger(), &fakeCanvas{}, nil)

	_, err := svc.Deliver(context.Background(), attempt.ID, "teacher-1")
	if !errors.Is(err, ErrAttemptNotGraded) {
		t.Fatalf("err = %v, want ErrAttemptNotGraded", err)
	}
}

func TestDeliver_StudentForbidden(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	svc := NewGradeSyncService(repo, nil, testLogger(), &fakeCanvas{}, nil)

	_, err := svc.Deliver(context.Background(), attempt.ID, "student-1")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Fatalf("err = %v, want PermissionError", err)
	}
}

func TestEnqueue(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	publisher := queue.NewPublisher(pubSub)

	svc := NewGradeSyncService(repo, nil, testLogger(), &fakeCanvas{}, publisher)
	if err := svc.Enqueue(context.Background(), attempt.ID, "teacher-1"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func TestEnqueue_Guards(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	svc := NewGradeSyncService(repo, nil, testLogger(), &fakeCanvas{}, nil)

	// Students cannot trigger passback
	err := svc.Enqueue(context.Background(), attempt.ID, "student-1")
	var permErr *PermissionError
	if !errors.As(err, &permErr) {
		t.Errorf("student: err = %v, want PermissionError", err)
	}

	// Unknown attempt
	if err := svc.Enqueue(context.Background(), 9999, "teacher-1"); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("unknown attempt: err = %v, want ErrAttemptNotFound", err)
	}

	// Only graded attempts are deliverable
	attempt.Status = models.AttemptInProgress
	if err := svc.Enqueue(context.Background(), attempt.ID, "teacher-1"); !errors.Is(err, ErrAttemptNotGraded) {
		t.Errorf("ungraded: err = %v, want ErrAttemptNotGraded", err)
	}
}

func TestEnqueueLab(t *testing.T) {
	repo := newFakeRepo()
	seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")

	// Second graded attempt plus one still in progress
	repo.attempts[11] = &models.LabAttempt{ID: 11, LabID: 1, StudentID: "student-2", AttemptNumber: 1, Status: models.AttemptGraded}
	repo.attempts[12] = &models.LabAttempt{ID: 12, LabID: 1, StudentID: "student-3", AttemptNumber: 1, Status: models.AttemptInProgress}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()
	publisher := queue.NewPublisher(pubSub)

	svc := NewGradeSyncService(repo, nil, testLogger(), &fakeCanvas{}, publisher)
	result, err := svc.EnqueueLab(context.Background(), 1, "teacher-1")
	if err != nil {
		t.Fatalf("EnqueueLab: %v", err)
	}
	if result.Total != 2 || result.Enqueued != 2 {
		t.Errorf("result = %+v, want total 2 enqueued 2", result)
	}
}

func TestGetSyncLog(t *testing.T) {
	repo := newFakeRepo()
	attempt := seedGradedAttempt(repo, strPtr("https://lms.example/lineitems/42"), "canvas-7")
	repo.syncLogs = append(repo.syncLogs,
		&models.GradeSyncLog{ID: 1, AttemptID: attempt.ID, CanvasStatus: models.SyncError, SyncedAt: time.Now()},
		&models.GradeSyncLog{ID: 2, AttemptID: attempt.ID, CanvasStatus: models.SyncSuccess, SyncedAt: time.Now()},
	)

	svc := NewGradeSyncService(repo, nil, testLogger(), &fakeCanvas{}, nil)
	resp, err := svc.GetSyncLog(context.Background(), attempt.ID, repositories.SyncLogFilters{}, "teacher-1")
	if err != nil {
		t.Fatalf("GetSyncLog: %v", err)
	}
	if resp.Total != 2 || len(resp.Entries) != 2 {
		t.Errorf("total = %d entries = %d, want 2/2", resp.Total, len(resp.Entries))
	}

	success := models.SyncSuccess
	resp, err = svc.GetSyncLog(context.Background(), attempt.ID, repositories.SyncLogFilters{Status: &success}, "teacher-1")
	if err != nil {
		t.Fatalf("GetSyncLog filtered: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("filtered total = %d, want 1", resp.Total)
	}
}
