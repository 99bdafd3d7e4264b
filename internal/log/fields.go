// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"
	FieldChannel   = "channel"
	FieldChannelID = "channel_id"
	FieldTunerID   = "tuner_id"
	FieldProgramID = "program_id"
	FieldSource    = "source"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOutcome   = "outcome"

	// Progress fields
	FieldCurrent = "current"
	FieldTotal   = "total"

	// Schema fields
	FieldFromVersion = "from_version"
	FieldToVersion   = "to_version"
	FieldState       = "state"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
