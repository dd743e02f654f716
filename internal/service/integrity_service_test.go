package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stemsi/exstem-live/internal/model"
)

func TestViolationThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)
	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)

	want := []bool{false, false, true}
	for i, kicked := range want {
		out, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: model.ViolationTabSwitch})
		if err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
		if out.ViolationCount != i+1 {
			t.Errorf("violation %d: count = %d", i+1, out.ViolationCount)
		}
		if out.KickedOut != kicked {
			t.Errorf("violation %d: kicked_out = %v, want %v", i+1, out.KickedOut, kicked)
		}
	}

	_, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: model.ViolationWindowBlur})
	if !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("4th violation: err = %v, want ErrAttemptNotActive", err)
	}

	a := h.db.attempts[res.Attempt.ID]
	if a.Status != model.AttemptStatusKickedOut || !a.IsFlagged || a.EndedAt == nil {
		t.Errorf("attempt after kick-out = %+v", a)
	}
	if a.ViolationCount != 3 {
		t.Errorf("violation count = %d, want 3 (no double counting)", a.ViolationCount)
	}
	if len(h.db.violations[a.ID]) != 3 {
		t.Errorf("%d violation rows, want 3", len(h.db.violations[a.ID]))
	}
}

func TestKickOutScoresAndNeverPasses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(func(e *model.Exam) { e.PassingScore = 0 })
	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)

	for _, q := range exam.Questions {
		if _, err := h.answers.Record(ctx, res.Attempt.ID, 1, &model.RecordAnswerRequest{QuestionID: q.ID, ChoiceID: correctChoice(q)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: model.ViolationFullscreenExit}); err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
	}

	a := h.db.attempts[res.Attempt.ID]
	if a.Score == nil || *a.Score != 30 {
		t.Errorf("score = %v, want 30", a.Score)
	}
	if a.Percentage == nil || *a.Percentage != 100 {
		t.Errorf("percentage = %v, want 100", a.Percentage)
	}
	if a.Passed == nil || *a.Passed {
		t.Errorf("passed = %v, want false for a kicked-out attempt", a.Passed)
	}

	result, err := h.attempts.Result(ctx, res.Attempt.ID, 1)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !result.Disqualified {
		t.Error("kicked-out attempt not reported as disqualified")
	}
	if _, err := h.scoring.Submit(ctx, res.Attempt.ID, 1); !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("submit after kick-out: err = %v, want ErrAttemptNotActive", err)
	}
}

func TestViolationConcurrentReportsKickOutOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)
	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		kicked  int
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: model.ViolationCopyPaste})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				return
			}
			success++
			if out.KickedOut {
				kicked++
			}
		}()
	}
	wg.Wait()

	if kicked != 1 {
		t.Errorf("%d reports observed the kick-out, want exactly 1", kicked)
	}
	if success != 3 {
		t.Errorf("%d reports accepted, want 3", success)
	}
}

func TestViolationValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	exam := h.seedExam(nil)
	res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)

	_, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: "screen_record"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("unknown type: err = %v, want *ValidationError", err)
	}

	if _, err := h.integrity.Record(ctx, res.Attempt.ID, 2, &model.RecordViolationRequest{Type: model.ViolationTabSwitch}); !errors.Is(err, ErrAttemptNotActive) {
		t.Errorf("other student: err = %v, want ErrAttemptNotActive", err)
	}

	details := json.RawMessage(`{"hidden_ms": 5400}`)
	if _, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: model.ViolationTabSwitch, Details: details}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := h.integrity.Record(ctx, res.Attempt.ID, 1, &model.RecordViolationRequest{Type: model.ViolationSuspiciousActivity}); err != nil {
		t.Fatalf("Record without details: %v", err)
	}

	rows := h.db.violations[res.Attempt.ID]
	if string(rows[0].Details) != string(details) {
		t.Errorf("details = %s, want %s", rows[0].Details, details)
	}
	if string(rows[1].Details) != `{}` {
		t.Errorf("empty details stored as %q, want {}", rows[1].Details)
	}
}

func TestViolationDetailsNotAnObject(t *testing.T) {
	cases := []struct {
		name    string
		details string
		want    string
	}{
		{"array", `[1, 2]`, `{}`},
		{"string", `"blur"`, `{}`},
		{"number", `42`, `{}`},
		{"null", `null`, `{}`},
		{"malformed", `{"hidden_ms":`, `{}`},
		{"padded object", ` {"hidden_ms": 10} `, `{"hidden_ms": 10}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			exam := h.seedExam(nil)
			res, _ := h.attempts.Start(ctx, 1, testGrade, exam.ID)

			req := &model.RecordViolationRequest{Type: model.ViolationTabSwitch, Details: json.RawMessage(tc.details)}
			if _, err := h.integrity.Record(ctx, res.Attempt.ID, 1, req); err != nil {
				t.Fatalf("Record: %v", err)
			}
			rows := h.db.violations[res.Attempt.ID]
			if len(rows) != 1 {
				t.Fatalf("%d violation rows, want 1", len(rows))
			}
			if string(rows[0].Details) != tc.want {
				t.Errorf("details %s stored as %s, want %s", tc.details, rows[0].Details, tc.want)
			}
		})
	}
}
