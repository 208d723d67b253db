package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"

	"github.com/Tamabadger/anatoview-sub000/internal/canvas"
	"github.com/Tamabadger/anatoview-sub000/internal/models"
	"github.com/Tamabadger/anatoview-sub000/internal/repositories"
	"github.com/Tamabadger/anatoview-sub000/internal/validator"
	"gorm.io/gorm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *validator.Validator {
	return validator.New()
}

// fakeRepo is an in-memory repositories.Repository for service tests.
type fakeRepo struct {
	labs       map[uint]*models.Lab
	structures map[uint]*models.Structure
	attempts   map[uint]*models.LabAttempt
	responses  map[uint]*models.StructureResponse
	syncLogs   []*models.GradeSyncLog
	users      map[string]*models.User
	nextID     uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		labs:       make(map[uint]*models.Lab),
		structures: make(map[uint]*models.Structure),
		attempts:   make(map[uint]*models.LabAttempt),
		responses:  make(map[uint]*models.StructureResponse),
		users:      make(map[string]*models.User),
		nextID:     1000,
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) Lab() repositories.LabRepository             { return &fakeLabRepo{f} }
func (f *fakeRepo) Structure() repositories.StructureRepository { return &fakeStructureRepo{f} }
func (f *fakeRepo) Attempt() repositories.AttemptRepository     { return &fakeAttemptRepo{f} }
func (f *fakeRepo) Response() repositories.ResponseRepository   { return &fakeResponseRepo{f} }
func (f *fakeRepo) SyncLog() repositories.SyncLogRepository     { return &fakeSyncLogRepo{f} }
func (f *fakeRepo) User() repositories.UserRepository           { return &fakeUserRepo{f} }

func (f *fakeRepo) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(f)
}
func (f *fakeRepo) Ping(ctx context.Context) error { return nil }
func (f *fakeRepo) Close() error                   { return nil }

var errNotImplemented = errors.New("not implemented in fake")

// ----- labs -----

type fakeLabRepo struct{ f *fakeRepo }

func (r *fakeLabRepo) Create(ctx context.Context, tx *gorm.DB, lab *models.Lab) error {
	if lab.ID == 0 {
		lab.ID = r.f.id()
	}
	r.f.labs[lab.ID] = lab
	return nil
}

func (r *fakeLabRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Lab, error) {
	lab, ok := r.f.labs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return lab, nil
}

func (r *fakeLabRepo) GetByIDWithStructures(ctx context.Context, tx *gorm.DB, id uint) (*models.Lab, error) {
	lab, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	lab.Structures = nil
	for _, s := range r.f.structures {
		if s.LabID == id {
			lab.Structures = append(lab.Structures, *s)
		}
	}
	return lab, nil
}

func (r *fakeLabRepo) Update(ctx context.Context, tx *gorm.DB, lab *models.Lab) error {
	r.f.labs[lab.ID] = lab
	return nil
}

func (r *fakeLabRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.labs, id)
	return nil
}

func (r *fakeLabRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.LabFilters) ([]*models.Lab, int64, error) {
	return nil, 0, errNotImplemented
}

func (r *fakeLabRepo) GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters repositories.LabFilters) ([]*models.Lab, int64, error) {
	return nil, 0, errNotImplemented
}

func (r *fakeLabRepo) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := r.f.labs[id]
	return ok, nil
}

func (r *fakeLabRepo) IsPublished(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	lab, ok := r.f.labs[id]
	return ok && lab.Published, nil
}

func (r *fakeLabRepo) GetStats(ctx context.Context, tx *gorm.DB, id uint) (*repositories.LabStats, error) {
	return nil, errNotImplemented
}

// ----- structures -----

type fakeStructureRepo struct{ f *fakeRepo }

func (r *fakeStructureRepo) Create(ctx context.Context, tx *gorm.DB, structure *models.Structure) error {
	if structure.ID == 0 {
		structure.ID = r.f.id()
	}
	r.f.structures[structure.ID] = structure
	return nil
}

func (r *fakeStructureRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Structure, error) {
	s, ok := r.f.structures[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeStructureRepo) Update(ctx context.Context, tx *gorm.DB, structure *models.Structure) error {
	r.f.structures[structure.ID] = structure
	return nil
}

func (r *fakeStructureRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	delete(r.f.structures, id)
	return nil
}

func (r *fakeStructureRepo) GetByLab(ctx context.Context, tx *gorm.DB, labID uint) ([]*models.Structure, error) {
	var out []*models.Structure
	for _, s := range r.f.structures {
		if s.LabID == labID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeStructureRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Structure, error) {
	var out []*models.Structure
	for _, id := range ids {
		if s, ok := r.f.structures[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStructureRepo) CountByLab(ctx context.Context, tx *gorm.DB, labID uint) (int64, error) {
	structures, _ := r.GetByLab(ctx, tx, labID)
	return int64(len(structures)), nil
}

// ----- attempts -----

type fakeAttemptRepo struct{ f *fakeRepo }

func (r *fakeAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.LabAttempt) error {
	if attempt.ID == 0 {
		attempt.ID = r.f.id()
	}
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.LabAttempt, error) {
	attempt, ok := r.f.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.LabAttempt, error) {
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	attempt.Responses = nil
	for _, resp := range r.f.responses {
		if resp.AttemptID == id {
			attempt.Responses = append(attempt.Responses, *resp)
		}
	}
	return attempt, nil
}

func (r *fakeAttemptRepo) Update(ctx context.Context, tx *gorm.DB, attempt *models.LabAttempt) error {
	if _, ok := r.f.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.f.attempts[attempt.ID] = attempt
	return nil
}

func (r *fakeAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.LabAttempt, int64, error) {
	return nil, 0, errNotImplemented
}

func (r *fakeAttemptRepo) GetByLab(ctx context.Context, tx *gorm.DB, labID uint, filters repositories.AttemptFilters) ([]*models.LabAttempt, int64, error) {
	var out []*models.LabAttempt
	for _, attempt := range r.f.attempts {
		if attempt.LabID != labID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		out = append(out, attempt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.LabAttempt, int64, error) {
	return nil, 0, errNotImplemented
}

func (r *fakeAttemptRepo) GetByLabAndStudent(ctx context.Context, tx *gorm.DB, labID uint, studentID string) ([]*models.LabAttempt, error) {
	var out []*models.LabAttempt
	for _, attempt := range r.f.attempts {
		if attempt.LabID == labID && attempt.StudentID == studentID {
			out = append(out, attempt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber > out[j].AttemptNumber })
	return out, nil
}

func (r *fakeAttemptRepo) GetByStatus(ctx context.Context, tx *gorm.DB, status models.AttemptStatus, limit, offset int) ([]*models.LabAttempt, error) {
	return nil, errNotImplemented
}

func (r *fakeAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (*models.LabAttempt, error) {
	for _, attempt := range r.f.attempts {
		if attempt.LabID == labID && attempt.StudentID == studentID && attempt.Status.IsActive() {
			return attempt, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) HasActiveAttempt(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (bool, error) {
	_, err := r.GetActiveAttempt(ctx, tx, labID, studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *fakeAttemptRepo) CountByLabAndStudent(ctx context.Context, tx *gorm.DB, labID uint, studentID string) (int64, error) {
	attempts, _ := r.GetByLabAndStudent(ctx, tx, labID, studentID)
	return int64(len(attempts)), nil
}

func (r *fakeAttemptRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AttemptStatus) error {
	attempt, ok := r.f.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	attempt.Status = status
	return nil
}

// ----- responses -----

type fakeResponseRepo struct{ f *fakeRepo }

func (r *fakeResponseRepo) find(attemptID, structureID uint) *models.StructureResponse {
	for _, resp := range r.f.responses {
		if resp.AttemptID == attemptID && resp.StructureID == structureID {
			return resp
		}
	}
	return nil
}

func (r *fakeResponseRepo) Upsert(ctx context.Context, tx *gorm.DB, response *models.StructureResponse) error {
	// Mirrors the real upsert: answer columns only, grading survives
	if existing := r.find(response.AttemptID, response.StructureID); existing != nil {
		existing.StudentAnswer = response.StudentAnswer
		existing.ConfidenceLevel = response.ConfidenceLevel
		existing.HintsUsed = response.HintsUsed
		existing.TimeSpent = response.TimeSpent
		return nil
	}
	if response.ID == 0 {
		response.ID = r.f.id()
	}
	r.f.responses[response.ID] = response
	return nil
}

func (r *fakeResponseRepo) UpsertBatch(ctx context.Context, tx *gorm.DB, responses []*models.StructureResponse) error {
	for _, response := range responses {
		if err := r.Upsert(ctx, tx, response); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeResponseRepo) Update(ctx context.Context, tx *gorm.DB, response *models.StructureResponse) error {
	if _, ok := r.f.responses[response.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.f.responses[response.ID] = response
	return nil
}

func (r *fakeResponseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StructureResponse, error) {
	resp, ok := r.f.responses[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return resp, nil
}

func (r *fakeResponseRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StructureResponse, error) {
	var out []*models.StructureResponse
	for _, resp := range r.f.responses {
		if resp.AttemptID == attemptID {
			out = append(out, resp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StructureID < out[j].StructureID })
	return out, nil
}

func (r *fakeResponseRepo) GetByAttemptAndStructure(ctx context.Context, tx *gorm.DB, attemptID, structureID uint) (*models.StructureResponse, error) {
	if resp := r.find(attemptID, structureID); resp != nil {
		return resp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeResponseRepo) CountCorrectByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (int64, error) {
	var count int64
	for _, resp := range r.f.responses {
		if resp.AttemptID == attemptID && resp.IsCorrect != nil && *resp.IsCorrect {
			count++
		}
	}
	return count, nil
}

// ----- sync logs -----

type fakeSyncLogRepo struct{ f *fakeRepo }

func (r *fakeSyncLogRepo) Append(ctx context.Context, tx *gorm.DB, log *models.GradeSyncLog) error {
	if log.ID == 0 {
		log.ID = r.f.id()
	}
	r.f.syncLogs = append(r.f.syncLogs, log)
	return nil
}

func (r *fakeSyncLogRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint, filters repositories.SyncLogFilters) ([]*models.GradeSyncLog, int64, error) {
	var out []*models.GradeSyncLog
	for _, log := range r.f.syncLogs {
		if log.AttemptID != attemptID {
			continue
		}
		if filters.Status != nil && log.CanvasStatus != *filters.Status {
			continue
		}
		out = append(out, log)
	}
	return out, int64(len(out)), nil
}

func (r *fakeSyncLogRepo) GetLatestByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) (*models.GradeSyncLog, error) {
	logs, _, _ := r.GetByAttempt(ctx, tx, attemptID, repositories.SyncLogFilters{})
	if len(logs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return logs[len(logs)-1], nil
}

func (r *fakeSyncLogRepo) GetStats(ctx context.Context, tx *gorm.DB, labID uint) (*repositories.SyncStats, error) {
	return nil, errNotImplemented
}

// ----- users -----

type fakeUserRepo struct{ f *fakeRepo }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := r.f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range r.f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) List(ctx context.Context, filters repositories.UserFilters) ([]*models.User, int64, error) {
	return nil, 0, errNotImplemented
}

func (r *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := r.f.users[id]
	return ok, nil
}

func (r *fakeUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	user, ok := r.f.users[id]
	return ok && user.Role == role, nil
}

// ----- canvas -----

// fakeCanvas records posted scores and plays back a scripted answer.
type fakeCanvas struct {
	result *canvas.DeliveryResult
	err    error
	posted []canvas.Score
}

func (c *fakeCanvas) PostScore(ctx context.Context, outcomeRef string, score canvas.Score) (*canvas.DeliveryResult, error) {
	c.posted = append(c.posted, score)
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}
