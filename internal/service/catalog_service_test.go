package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stemsi/exstem-live/internal/model"
)

func validCreateRequest() *model.CreateExamRequest {
	return &model.CreateExamRequest{
		Title:           "Kimia Organik",
		Grade:           testGrade,
		DurationMinutes: 60,
		ScheduledStart:  baseTime.Add(24 * time.Hour),
		PassingScore:    70,
		Questions: []model.QuestionInput{
			{Text: "Q1", Points: 10, Choices: []model.ChoiceInput{{Text: "A", IsCorrect: true}, {Text: "B"}}},
			{Text: "Q2", Points: 5, Choices: []model.ChoiceInput{{Text: "A"}, {Text: "B", IsCorrect: true}}},
		},
	}
}

func TestCatalogCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	exam, err := h.catalog.Create(ctx, testOwnerID, validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if want := exam.ScheduledStart.Add(60 * time.Minute); !exam.EndsAt.Equal(want) {
		t.Errorf("ends_at = %v, want %v", exam.EndsAt, want)
	}
	if exam.TotalPoints() != 15 {
		t.Errorf("total points = %d, want 15", exam.TotalPoints())
	}

	got, err := h.catalog.Get(ctx, testOwnerID, exam.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Questions) != 2 || got.Questions[1].OrderNum != 1 {
		t.Errorf("questions not stored in request order: %+v", got.Questions)
	}

	if _, err := h.catalog.Get(ctx, testOwnerID+1, exam.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get by other owner: err = %v, want ErrNotFound", err)
	}
}

func TestCatalogCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *model.CreateExamRequest)
		field  string
	}{
		{"empty title", func(r *model.CreateExamRequest) { r.Title = "   " }, "title"},
		{"zero questions", func(r *model.CreateExamRequest) { r.Questions = nil }, "questions"},
		{"question without correct choice", func(r *model.CreateExamRequest) {
			r.Questions[1].Choices[1].IsCorrect = false
		}, "questions[1].choices"},
		{"question without choices", func(r *model.CreateExamRequest) {
			r.Questions[0].Choices = nil
		}, "questions[0].choices"},
		{"passing score above 100", func(r *model.CreateExamRequest) { r.PassingScore = 100.5 }, "passing_score"},
		{"negative passing score", func(r *model.CreateExamRequest) { r.PassingScore = -1 }, "passing_score"},
		{"non-positive points", func(r *model.CreateExamRequest) { r.Questions[0].Points = 0 }, "questions[0].points"},
		{"start in the past", func(r *model.CreateExamRequest) { r.ScheduledStart = baseTime.Add(-time.Minute) }, "scheduled_start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := validCreateRequest()
			tt.mutate(req)

			_, err := h.catalog.Create(context.Background(), testOwnerID, req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want key %q", verr.Fields, tt.field)
			}
			if n := len(h.db.exams); n != 0 {
				t.Errorf("%d exams persisted after failed validation", n)
			}
		})
	}
}

func TestCatalogUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	exam, err := h.catalog.Create(ctx, testOwnerID, validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	duration := 120
	title := "Kimia Organik (revisi)"
	updated, err := h.catalog.Update(ctx, testOwnerID, exam.ID, &model.UpdateExamRequest{
		Title:           &title,
		DurationMinutes: &duration,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != title {
		t.Errorf("title = %q", updated.Title)
	}
	if want := exam.ScheduledStart.Add(120 * time.Minute); !updated.EndsAt.Equal(want) {
		t.Errorf("ends_at not recomputed: %v, want %v", updated.EndsAt, want)
	}
	if len(updated.Questions) != 2 {
		t.Errorf("questions changed without being supplied: %d", len(updated.Questions))
	}

	zero := 0
	three := 3
	if _, err := h.catalog.Update(ctx, testOwnerID, exam.ID, &model.UpdateExamRequest{MaxAttempts: &three}); err != nil {
		t.Fatalf("set max attempts: %v", err)
	}
	cleared, err := h.catalog.Update(ctx, testOwnerID, exam.ID, &model.UpdateExamRequest{MaxAttempts: &zero})
	if err != nil {
		t.Fatalf("clear max attempts: %v", err)
	}
	if cleared.MaxAttempts != nil {
		t.Errorf("max_attempts = %v, want nil (unlimited)", *cleared.MaxAttempts)
	}
}

func TestCatalogUpdateRejectsQuestionWithoutCorrectChoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	exam, err := h.catalog.Create(ctx, testOwnerID, validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	questions := validCreateRequest().Questions
	questions[0].Choices[0].IsCorrect = false
	_, err = h.catalog.Update(ctx, testOwnerID, exam.ID, &model.UpdateExamRequest{Questions: &questions})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}

	stored, _ := h.catalog.Get(ctx, testOwnerID, exam.ID)
	if !stored.Questions[0].HasCorrectChoice() {
		t.Error("failed update was partially applied")
	}
}

func TestCatalogUpdateFrozenAfterStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	exam, err := h.catalog.Create(ctx, testOwnerID, validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "late edit"
	for _, at := range []time.Time{exam.ScheduledStart, exam.EndsAt.Add(time.Hour)} {
		h.setNow(at)
		_, err := h.catalog.Update(ctx, testOwnerID, exam.ID, &model.UpdateExamRequest{Title: &title})
		if !errors.Is(err, ErrExamStarted) {
			t.Errorf("update at %v: err = %v, want ErrExamStarted", at, err)
		}
		if !IsInvalidState(err) {
			t.Errorf("ErrExamStarted should classify as invalid state")
		}
	}
}

func TestCatalogDeleteAndList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	list, err := h.catalog.ListByOwner(ctx, testOwnerID)
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("empty list = %#v, want non-nil empty slice", list)
	}

	exam, err := h.catalog.Create(ctx, testOwnerID, validCreateRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := h.catalog.Delete(ctx, testOwnerID+1, exam.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete by other owner: err = %v, want ErrNotFound", err)
	}
	if err := h.catalog.Delete(ctx, testOwnerID, exam.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.catalog.Get(ctx, testOwnerID, exam.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}
