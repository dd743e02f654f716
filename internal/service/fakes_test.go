package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// memDB is an in-memory stand-in for PostgreSQL. Each guarded operation runs
// under one mutex, mirroring the row lock the real statements take.
type memDB struct {
	mu         sync.Mutex
	now        time.Time
	exams      map[uuid.UUID]*model.Exam
	attempts   map[uuid.UUID]*model.Attempt
	answers    map[uuid.UUID]map[uuid.UUID]model.Answer
	violations map[uuid.UUID][]model.Violation
	students   map[int]model.Student
	nextID     int64
}

func newMemDB(now time.Time) *memDB {
	return &memDB{
		now:        now,
		exams:      make(map[uuid.UUID]*model.Exam),
		attempts:   make(map[uuid.UUID]*model.Attempt),
		answers:    make(map[uuid.UUID]map[uuid.UUID]model.Answer),
		violations: make(map[uuid.UUID][]model.Violation),
		students:   make(map[int]model.Student),
	}
}

func cloneExam(e *model.Exam) *model.Exam {
	cp := *e
	cp.Questions = make([]model.Question, len(e.Questions))
	for i, q := range e.Questions {
		q.Choices = append([]model.Choice(nil), q.Choices...)
		cp.Questions[i] = q
	}
	return &cp
}

// ─── Exams ───

type fakeExams struct{ db *memDB }

func (f fakeExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneExam(e), nil
}

func (f fakeExams) ListByOwner(_ context.Context, ownerID int) ([]model.Exam, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Exam
	for _, e := range f.db.exams {
		if e.OwnerID == ownerID {
			cp := *e
			cp.Questions = nil
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledStart.After(out[j].ScheduledStart) })
	return out, nil
}

func (f fakeExams) ListOpenOrUpcoming(_ context.Context, horizon time.Time) ([]model.Exam, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Exam
	for _, e := range f.db.exams {
		if e.EndsAt.After(f.db.now) && !e.ScheduledStart.After(horizon) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f fakeExams) Create(_ context.Context, e *model.Exam) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e.ID = uuid.New()
	e.CreatedAt, e.UpdatedAt = f.db.now, f.db.now
	assignQuestionIDs(e)
	f.db.exams[e.ID] = cloneExam(e)
	return nil
}

func (f fakeExams) Update(_ context.Context, e *model.Exam, replaceQuestions bool) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored, ok := f.db.exams[e.ID]
	if !ok || stored.OwnerID != e.OwnerID || !stored.ScheduledStart.After(f.db.now) {
		return repository.ErrExamStarted
	}
	if replaceQuestions {
		assignQuestionIDs(e)
	} else {
		e.Questions = stored.Questions
	}
	e.UpdatedAt = f.db.now
	f.db.exams[e.ID] = cloneExam(e)
	return nil
}

func (f fakeExams) Delete(_ context.Context, id uuid.UUID, ownerID int) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.exams[id]
	if !ok || e.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	delete(f.db.exams, id)
	for aid, a := range f.db.attempts {
		if a.ExamID == id {
			delete(f.db.attempts, aid)
			delete(f.db.answers, aid)
			delete(f.db.violations, aid)
		}
	}
	return nil
}

func assignQuestionIDs(e *model.Exam) {
	for i := range e.Questions {
		q := &e.Questions[i]
		q.ID = uuid.New()
		q.ExamID = e.ID
		for j := range q.Choices {
			q.Choices[j].ID = uuid.New()
			q.Choices[j].QuestionID = q.ID
		}
	}
}

// ─── Attempts ───

type fakeAttempts struct{ db *memDB }

func (f fakeAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f fakeAttempts) ListByExamAndStudent(_ context.Context, examID uuid.UUID, studentID int) ([]model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Attempt
	for _, a := range f.db.attempts {
		if a.ExamID == examID && a.StudentID == studentID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNumber > out[j].AttemptNumber })
	return out, nil
}

func (f fakeAttempts) CreateActive(_ context.Context, a *model.Attempt) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, other := range f.db.attempts {
		if other.ExamID != a.ExamID || other.StudentID != a.StudentID {
			continue
		}
		if other.IsActive() || other.AttemptNumber == a.AttemptNumber {
			return false, nil
		}
	}
	a.Status = model.AttemptStatusInProgress
	cp := *a
	f.db.attempts[a.ID] = &cp
	return true, nil
}

func (f fakeAttempts) Submit(_ context.Context, p repository.SubmitParams) (*model.Attempt, *model.SubmissionResult, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[p.AttemptID]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	if a.StudentID != p.StudentID || !a.IsActive() {
		return nil, nil, repository.ErrAttemptNotActive
	}

	exam := f.db.exams[a.ExamID]
	result := model.NewSubmissionResult(f.db.correctPoints(a), a.TotalPoints, exam.PassingScore)
	now := f.db.now
	a.Status = model.AttemptStatusSubmitted
	a.Score, a.Percentage, a.Passed = &result.Score, &result.Percentage, &result.Passed
	a.AutoSubmitted = p.Auto
	a.SubmittedAt, a.EndedAt = &now, &now
	cp := *a
	return &cp, &result, nil
}

func (f fakeAttempts) ListOverdue(_ context.Context, grace time.Duration, limit int) ([]model.Attempt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Attempt
	for _, a := range f.db.attempts {
		exam := f.db.exams[a.ExamID]
		if a.IsActive() && !a.StartedAt.Add(exam.Duration()+grace).After(f.db.now) {
			out = append(out, *a)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f fakeAttempts) ListByExam(_ context.Context, examID uuid.UUID) ([]model.AttemptSummary, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.AttemptSummary
	for _, a := range f.db.attempts {
		if a.ExamID == examID {
			out = append(out, model.AttemptSummary{
				Attempt:       *a,
				StudentName:   f.db.students[a.StudentID].Name,
				AnsweredCount: len(f.db.answers[a.ID]),
			})
		}
	}
	return out, nil
}

// correctPoints must be called with the lock held.
func (db *memDB) correctPoints(a *model.Attempt) int {
	exam := db.exams[a.ExamID]
	score := 0
	for qid, ans := range db.answers[a.ID] {
		if !ans.IsCorrect {
			continue
		}
		if q := exam.Question(qid); q != nil {
			score += q.Points
		}
	}
	return score
}

// ─── Answers ───

type fakeAnswers struct{ db *memDB }

func (f fakeAnswers) Upsert(_ context.Context, ans *model.Answer, studentID int) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[ans.AttemptID]
	if !ok || a.StudentID != studentID || !a.IsActive() {
		return repository.ErrAttemptNotActive
	}
	byQuestion := f.db.answers[ans.AttemptID]
	if byQuestion == nil {
		byQuestion = make(map[uuid.UUID]model.Answer)
		f.db.answers[ans.AttemptID] = byQuestion
	}
	if prev, exists := byQuestion[ans.QuestionID]; exists {
		ans.ID, ans.AnsweredAt = prev.ID, prev.AnsweredAt
	} else {
		ans.ID, ans.AnsweredAt = uuid.New(), f.db.now
	}
	ans.UpdatedAt = f.db.now
	byQuestion[ans.QuestionID] = *ans
	return nil
}

func (f fakeAnswers) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Answer
	for _, a := range f.db.answers[attemptID] {
		out = append(out, a)
	}
	return out, nil
}

// ─── Violations ───

type fakeViolations struct{ db *memDB }

func (f fakeViolations) Record(_ context.Context, v *model.Violation, studentID, threshold int) (*model.ViolationOutcome, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.attempts[v.AttemptID]
	if !ok || a.StudentID != studentID || !a.IsActive() {
		return nil, repository.ErrAttemptNotActive
	}

	a.ViolationCount++
	f.db.nextID++
	v.ID, v.RecordedAt = f.db.nextID, f.db.now
	f.db.violations[a.ID] = append(f.db.violations[a.ID], *v)

	kicked := a.ViolationCount >= threshold
	if kicked {
		now := f.db.now
		result := model.NewSubmissionResult(f.db.correctPoints(a), a.TotalPoints, 0)
		passed := false
		a.Status = model.AttemptStatusKickedOut
		a.IsFlagged = true
		a.EndedAt = &now
		a.Score, a.Percentage, a.Passed = &result.Score, &result.Percentage, &passed
	}
	return &model.ViolationOutcome{ViolationCount: a.ViolationCount, KickedOut: kicked}, nil
}

func (f fakeViolations) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return append([]model.Violation(nil), f.db.violations[attemptID]...), nil
}

// ─── Students ───

type fakeStudents struct{ db *memDB }

func (f fakeStudents) GetByID(_ context.Context, id int) (*model.Student, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (f fakeStudents) ListByGrade(_ context.Context, grade string) ([]model.Student, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []model.Student
	for _, s := range f.db.students {
		if s.Grade == grade {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ─── Harness ───

const (
	testGrade   = "XII"
	testOwnerID = 7
)

var baseTime = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type harness struct {
	db        *memDB
	catalog   *CatalogService
	attempts  *AttemptService
	answers   *AnswerService
	integrity *IntegrityService
	scoring   *ScoringService
	reports   *ReportService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := newMemDB(baseTime)
	log := zerolog.Nop()
	exams := fakeExams{db}
	attempts := fakeAttempts{db}
	answers := fakeAnswers{db}
	violations := fakeViolations{db}
	students := fakeStudents{db}

	cache := NewExamCache(exams, nil, time.Hour, log)
	events := NewEventPublisher(nil, log)

	h := &harness{
		db:        db,
		catalog:   NewCatalogService(exams, cache, NewNotificationQueue(nil), log),
		attempts:  NewAttemptService(cache, attempts, answers, events, log),
		answers:   NewAnswerService(cache, attempts, answers, events, log),
		integrity: NewIntegrityService(attempts, violations, NewViolationLimiter(nil, 5), events, 3, log),
		scoring:   NewScoringService(attempts, events, log),
		reports:   NewReportService(exams, attempts, answers, violations, students),
	}
	clock := func() time.Time {
		db.mu.Lock()
		defer db.mu.Unlock()
		return db.now
	}
	h.catalog.now = clock
	h.attempts.now = clock
	return h
}

func (h *harness) setNow(t time.Time) {
	h.db.mu.Lock()
	h.db.now = t
	h.db.mu.Unlock()
}

func (h *harness) addStudent(id int, name, grade string) {
	h.db.mu.Lock()
	h.db.students[id] = model.Student{ID: id, Name: name, Grade: grade, CreatedAt: baseTime}
	h.db.mu.Unlock()
}

// seedExam stores an exam whose window is open at baseTime: two questions
// worth 10 and 20 points, each with the first of three choices correct,
// passing score 60.
func (h *harness) seedExam(mutate func(e *model.Exam)) *model.Exam {
	e := &model.Exam{
		ID:              uuid.New(),
		OwnerID:         testOwnerID,
		Title:           "Fisika Dasar",
		Grade:           testGrade,
		DurationMinutes: 90,
		ScheduledStart:  baseTime.Add(-10 * time.Minute),
		PassingScore:    60,
	}
	for i, pts := range []int{10, 20} {
		q := model.Question{ID: uuid.New(), ExamID: e.ID, Text: "Q", Points: pts, OrderNum: i}
		for j := 0; j < 3; j++ {
			q.Choices = append(q.Choices, model.Choice{
				ID: uuid.New(), QuestionID: q.ID, Text: "C", IsCorrect: j == 0, OrderNum: j,
			})
		}
		e.Questions = append(e.Questions, q)
	}
	if mutate != nil {
		mutate(e)
	}
	e.DeriveEndsAt()

	h.db.mu.Lock()
	h.db.exams[e.ID] = cloneExam(e)
	h.db.mu.Unlock()
	return e
}

func correctChoice(q model.Question) uuid.UUID { return q.Choices[0].ID }
func wrongChoice(q model.Question) uuid.UUID   { return q.Choices[1].ID }
