package model

import (
	"time"

	"github.com/google/uuid"
)

// MonitorEventType names a lifecycle event fanned out to live monitors.
type MonitorEventType string

const (
	EventAttemptStarted    MonitorEventType = "attempt_started"
	EventAttemptResumed    MonitorEventType = "attempt_resumed"
	EventAnswerRecorded    MonitorEventType = "answer_recorded"
	EventViolationRecorded MonitorEventType = "violation_recorded"
	EventKickedOut         MonitorEventType = "kicked_out"
	EventSubmitted         MonitorEventType = "submitted"
	EventAutoSubmitted     MonitorEventType = "auto_submitted"
)

// MonitorEvent is published on the exam's monitor channel.
type MonitorEvent struct {
	Type      MonitorEventType `json:"type"`
	ExamID    uuid.UUID        `json:"exam_id"`
	AttemptID uuid.UUID        `json:"attempt_id"`
	StudentID int              `json:"student_id"`
	Data      any              `json:"data,omitempty"`
	At        time.Time        `json:"at"`
}

// ExamCreatedJob is queued when an exam is created so the roster can be notified.
type ExamCreatedJob struct {
	ExamID  uuid.UUID `json:"exam_id"`
	Retried bool      `json:"retried,omitempty"`
}

// ExamCreatedNotification is the message published per student to the broker.
type ExamCreatedNotification struct {
	ExamID         uuid.UUID `json:"exam_id"`
	StudentID      int       `json:"student_id"`
	Title          string    `json:"title"`
	Grade          string    `json:"grade"`
	ScheduledStart time.Time `json:"scheduled_start"`
	EndsAt         time.Time `json:"ends_at"`
}
