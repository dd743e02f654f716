package service

import (
	"errors"
	"sort"
	"strings"
)

// Domain errors. Every one of them is an expected, user-facing outcome; the
// handler layer maps them onto response codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrExamNotStarted     = errors.New("exam has not started yet")
	ErrExamEnded          = errors.New("exam has ended")
	ErrRetryNotAllowed    = errors.New("exam does not allow retries")
	ErrMaxAttemptsReached = errors.New("maximum number of attempts reached")
	ErrInvalidChoice      = errors.New("choice does not belong to the question")
	ErrNoQuestions        = errors.New("exam has no questions")
	ErrRateLimited        = errors.New("too many violation reports")

	// ErrAttemptNotActive and ErrExamStarted are the two invalid-state outcomes.
	ErrAttemptNotActive = errors.New("attempt is not in progress")
	ErrExamStarted      = errors.New("exam has already started and can no longer be edited")
)

// ValidationError reports malformed input, keyed by JSON field path.
// Nothing is persisted when it is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsInvalidState reports whether err is one of the invalid-state outcomes.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrAttemptNotActive) || errors.Is(err, ErrExamStarted)
}
