// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingHandler is returned when the ops listener has no handler.
	ErrMissingHandler = errors.New("ops handler is required")

	// ErrMissingRuntime is returned when an app is created without a runtime.
	ErrMissingRuntime = errors.New("runtime is required")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrUnknownSource is returned by Runtime.Source for a name that is not configured.
	ErrUnknownSource = errors.New("source not configured")
)
