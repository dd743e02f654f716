package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
)

func TestStartTimeWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"before scheduled start", exam.ScheduledStart.Add(-time.Second), ErrExamNotStarted},
		{"after ends_at", exam.EndsAt.Add(time.Second), ErrExamEnded},
		{"at scheduled start", exam.ScheduledStart, nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.setNow(tt.at)
			_, err := h.attempts.Start(ctx, 100+i, testGrade, exam.ID)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartUnknownExamOrWrongGrade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)

	if _, err := h.attempts.Start(ctx, 1, testGrade, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown exam: err = %v, want ErrNotFound", err)
	}
	if _, err := h.attempts.Start(ctx, 1, "X", exam.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("grade mismatch: err = %v, want ErrNotFound", err)
	}
}

func TestStartResumesInProgressAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(func(e *model.Exam) { e.ShuffleQuestions = true })

	first, err := h.attempts.Start(ctx, 1, testGrade, exam.ID)
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if first.Resumed {
		t.Error("first start reported as resume")
	}
	if first.Attempt.AttemptNumber != 1 || first.Attempt.TotalPoints != 30 {
		t.Errorf("attempt = %+v", first.Attempt)
	}
	if first.RemainingSeconds != int64(exam.Duration().Seconds()) {
		t.Errorf("remaining = %d, want full duration", first.RemainingSeconds)
	}

	h.setNow(baseTime.Add(30 * time.Minute))
	second, err := h.attempts.Start(ctx, 1, testGrade, exam.ID)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !second.Resumed {
		t.Error("second start not reported as resume")
	}
	if second.Attempt.ID != first.Attempt.ID {
		t.Errorf("resume returned a different attempt: %s vs %s", second.Attempt.ID, first.Attempt.ID)
	}
	if second.Attempt.AttemptNumber != 1 {
		t.Errorf("attempt number advanced on resume: %d", second.Attempt.AttemptNumber)
	}
	if want := int64(60 * 60); second.RemainingSeconds != want {
		t.Errorf("remaining = %d, want %d", second.RemainingSeconds, want)
	}
	if len(h.db.attempts) != 1 {
		t.Errorf("%d attempts stored, want 1", len(h.db.attempts))
	}
}

func TestStartRetryPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("retry not allowed", func(t *testing.T) {
		h := newHarness(t)
		exam := h.seedExam(nil)

		res, err := h.attempts.Start(ctx, 1, testGrade, exam.ID)
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if _, err := h.attempts.Start(ctx, 1, testGrade, exam.ID); !errors.Is(err, ErrRetryNotAllowed) {
			t.Errorf("err = %v, want ErrRetryNotAllowed", err)
		}
	})

	t.Run("max attempts reached", func(t *testing.T) {
		h := newHarness(t)
		limit := 2
		exam := h.seedExam(func(e *model.Exam) {
			e.AllowRetry = true
			e.MaxAttempts = &limit
		})

		for n := 1; n <= 2; n++ {
			res, err := h.attempts.Start(ctx, 1, testGrade, exam.ID)
			if err != nil {
				t.Fatalf("start %d: %v", n, err)
			}
			if res.Attempt.AttemptNumber != n {
				t.Errorf("attempt number = %d, want %d", res.Attempt.AttemptNumber, n)
			}
			if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); err != nil {
				t.Fatalf("submit %d: %v", n, err)
			}
		}

		if _, err := h.attempts.Start(ctx, 1, testGrade, exam.ID); !errors.Is(err, ErrMaxAttemptsReached) {
			t.Errorf("third start: err = %v, want ErrMaxAttemptsReached", err)
		}
	})

	t.Run("unlimited retries", func(t *testing.T) {
		h := newHarness(t)
		exam := h.seedExam(func(e *model.Exam) { e.AllowRetry = true })

		for n := 1; n <= 4; n++ {
			res, err := h.attempts.Start(ctx, 1, testGrade, exam.ID)
			if err != nil {
				t.Fatalf("start %d: %v", n, err)
			}
			if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); err != nil {
				t.Fatalf("submit %d: %v", n, err)
			}
		}
	})
}

func TestStartNoQuestions(t *testing.T) {
	h := newHarness(t)
	exam := h.seedExam(func(e *model.Exam) { e.Questions = nil })

	if _, err := h.attempts.Start(context.Background(), 1, testGrade, exam.ID); !errors.Is(err, ErrNoQuestions) {
		t.Errorf("err = %v, want ErrNoQuestions", err)
	}
}

func TestGetQuestionsFrozenOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(func(e *model.Exam) {
		e.ShuffleQuestions = true
		e.ShuffleChoices = true
	})

	res, err := h.attempts.Start(ctx, 1, testGrade, exam.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := h.attempts.GetQuestions(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	if len(first.Questions) != len(exam.Questions) {
		t.Fatalf("got %d questions, want %d", len(first.Questions), len(exam.Questions))
	}
	for i, q := range first.Questions {
		if q.ID != res.Attempt.QuestionOrder[i] {
			t.Errorf("position %d: question %s, frozen order has %s", i, q.ID, res.Attempt.QuestionOrder[i])
		}
		if q.Position != i+1 {
			t.Errorf("position = %d, want %d", q.Position, i+1)
		}
		if len(q.Choices) != 3 {
			t.Errorf("question %s has %d choices", q.ID, len(q.Choices))
		}
	}

	h.setNow(baseTime.Add(5 * time.Minute))
	second, err := h.attempts.GetQuestions(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("second GetQuestions: %v", err)
	}
	for i := range first.Questions {
		for j := range first.Questions[i].Choices {
			if first.Questions[i].Choices[j].ID != second.Questions[i].Choices[j].ID {
				t.Fatalf("choice order changed between reads at question %d choice %d", i, j)
			}
		}
	}
	if second.RemainingSeconds != first.RemainingSeconds-300 {
		t.Errorf("remaining = %d, want %d", second.RemainingSeconds, first.RemainingSeconds-300)
	}
}

func TestGetQuestionsShowsSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)

	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)
	q := exam.Questions[1]
	if _, err := h.answers.Record(ctx, res.Attempt.ID, 1, &model.RecordAnswerRequest{
		QuestionID: q.ID, ChoiceID: wrongChoice(q),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	paper, err := h.attempts.GetQuestions(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("GetQuestions: %v", err)
	}
	for _, sq := range paper.Questions {
		switch sq.ID {
		case q.ID:
			if sq.SelectedChoiceID == nil || *sq.SelectedChoiceID != wrongChoice(q) {
				t.Errorf("selected = %v, want %s", sq.SelectedChoiceID, wrongChoice(q))
			}
		default:
			if sq.SelectedChoiceID != nil {
				t.Errorf("unanswered question %s shows a selection", sq.ID)
			}
		}
	}
}

func TestGetQuestionsAccessRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)

	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)

	if _, err := h.attempts.GetQuestions(ctx, uuid.New(), 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown attempt: err = %v, want ErrNotFound", err)
	}
	if _, err := h.attempts.GetQuestions(ctx, res.Attempt.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("other student: err = %v, want ErrNotFound", err)
	}

	if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := h.attempts.GetQuestions(ctx, res.Attempt.ID, 1); !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("submitted attempt: err = %v, want ErrAttemptNotActive", err)
	}
}

func TestStateAndResult(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(func(e *model.Exam) { e.ShowCorrectAnswers = true })

	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)
	q := exam.Questions[0]
	if _, err := h.answers.Record(ctx, res.Attempt.ID, 1, &model.RecordAnswerRequest{
		QuestionID: q.ID, ChoiceID: correctChoice(q),
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	state, err := h.attempts.State(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.AnsweredCount != 1 || state.AnsweredIDs[0] != q.ID {
		t.Errorf("state = %+v", state)
	}

	if _, err := h.attempts.Result(ctx, res.Attempt.ID, 1); !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("result while in progress: err = %v, want ErrAttemptNotActive", err)
	}

	if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result, err := h.attempts.Result(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.Disqualified {
		t.Error("submitted attempt reported as disqualified")
	}
	if got := result.CorrectAnswers[q.ID]; len(got) != 1 || got[0] != correctChoice(q) {
		t.Errorf("correct answers for %s = %v", q.ID, got)
	}

	state, _ = h.attempts.State(ctx, res.Attempt.ID, 1)
	if state.RemainingSeconds != 0 {
		t.Errorf("terminal attempt has %d seconds remaining", state.RemainingSeconds)
	}
}

func TestResultHidesCorrectAnswersByDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)

	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)
	if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	result, err := h.attempts.Result(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if result.CorrectAnswers != nil {
		t.Errorf("correct answers leaked: %v", result.CorrectAnswers)
	}
}
