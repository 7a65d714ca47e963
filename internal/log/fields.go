// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldRunID     = "run_id"
	FieldUserID    = "user_id"
	FieldProjectID = "project_id"
	FieldFrameID   = "frame_id"
	FieldScreenID  = "screen_id"

	// Workflow fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStep      = "step"
	FieldAttempt   = "attempt"
	FieldTopic     = "topic"
	FieldChannel   = "channel"
	FieldTheme     = "theme"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Provider fields
	FieldModel    = "model"
	FieldDuration = "duration_ms"
)
