package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ViolationType is the closed set of integrity breach categories.
type ViolationType string

const (
	ViolationTabSwitch          ViolationType = "tab_switch"
	ViolationWindowBlur         ViolationType = "window_blur"
	ViolationContextMenu        ViolationType = "context_menu"
	ViolationCopyPaste          ViolationType = "copy_paste"
	ViolationFullscreenExit     ViolationType = "fullscreen_exit"
	ViolationDeveloperTools     ViolationType = "developer_tools"
	ViolationSuspiciousActivity ViolationType = "suspicious_activity"
)

// ViolationTypes lists every accepted category.
var ViolationTypes = []ViolationType{
	ViolationTabSwitch,
	ViolationWindowBlur,
	ViolationContextMenu,
	ViolationCopyPaste,
	ViolationFullscreenExit,
	ViolationDeveloperTools,
	ViolationSuspiciousActivity,
}

// Valid reports whether t is a known category.
func (t ViolationType) Valid() bool {
	for _, v := range ViolationTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Violation is an append-only integrity event attributed to an attempt.
type Violation struct {
	ID         int64           `json:"id"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	Type       ViolationType   `json:"type"`
	Details    json.RawMessage `json:"details"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// RecordViolationRequest is the payload for reporting a violation.
type RecordViolationRequest struct {
	Type    ViolationType   `json:"type" binding:"required,violation_type"`
	Details json.RawMessage `json:"details"`
}

// ViolationOutcome is the counter state after recording a violation.
type ViolationOutcome struct {
	ViolationCount int  `json:"violation_count"`
	KickedOut      bool `json:"kicked_out"`
}
