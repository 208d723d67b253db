package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type exportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

var gradeExportHeader = []string{
	"Attempt ID", "Student ID", "Student Name", "Student Email",
	"Attempt #", "Status", "Score", "Percentage", "Time Spent (s)", "Submitted At",
}

// ExportLabGrades renders every graded attempt of the lab into one worksheet.
func (s *exportService) ExportLabGrades(ctx context.Context, labID uint, userID string) (*GradeExport, error) {
	staff, err := s.isStaff(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !staff {
		return nil, NewPermissionError(userID, labID, "lab", "export_grades", "insufficient role permissions")
	}

	lab, err := s.repo.Lab().GetByID(ctx, s.db, labID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrLabNotFound
		}
		return nil, fmt.Errorf("failed to get lab: %w", err)
	}

	graded := models.AttemptGraded
	attempts, _, err := s.repo.Attempt().GetByLab(ctx, s.db, labID, repositories.AttemptFilters{
		Status:    &graded,
		SortBy:    "created_at",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list graded attempts: %w", err)
	}

	users := s.lookupStudents(ctx, attempts)

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Grades"
	file.SetSheetName(file.GetSheetName(0), sheet)

	for col, title := range gradeExportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		file.SetCellValue(sheet, cell, title)
	}

	for i, attempt := range attempts {
		row := i + 2
		name, email := "", ""
		if user, ok := users[attempt.StudentID]; ok {
			name, email = user.FullName, user.Email
		}
		submitted := ""
		if attempt.SubmittedAt != nil {
			submitted = attempt.SubmittedAt.Format(time.RFC3339)
		}

		values := []any{
			attempt.ID, attempt.StudentID, name, email,
			attempt.AttemptNumber, string(attempt.Status),
			attempt.Score, attempt.Percentage, attempt.TimeSpent, submitted,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			file.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Grade export generated",
		"lab_id", labID,
		"requested_by", userID,
		"attempts_count", len(attempts))

	return &GradeExport{
		FileName: fmt.Sprintf("lab_%d_grades_%s.xlsx", lab.ID, time.Now().Format("20060102")),
		Content:  buf.Bytes(),
	}, nil
}

// lookupStudents resolves identities best effort; a missing user leaves the
// name columns blank rather than failing the export.
func (s *exportService) lookupStudents(ctx context.Context, attempts []*models.LabAttempt) map[string]*models.User {
	seen := make(map[string]struct{}, len(attempts))
	ids := make([]string, 0, len(attempts))
	for _, attempt := range attempts {
		if _, ok := seen[attempt.StudentID]; ok {
			continue
		}
		seen[attempt.StudentID] = struct{}{}
		ids = append(ids, attempt.StudentID)
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve students for export", "error", err)
		return nil
	}

	byID := make(map[string]*models.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}
	return byID
}

func (s *exportService) isStaff(ctx context.Context, userID string) (bool, error) {
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
