// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate collects field errors while checking a configuration.
package validate

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalid is matched by every field error.
var ErrInvalid = errors.New("invalid configuration")

// Error is one rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e Error) Unwrap() error { return ErrInvalid }

// ValidationError bundles the field errors of one pass.
type ValidationError struct {
	errors []Error
}

// Errors returns the field errors in the order they were found.
func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, fe := range e.errors {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the field errors to errors.Is and errors.As.
func (e ValidationError) Unwrap() []error {
	out := make([]error, len(e.errors))
	for i, fe := range e.errors {
		out[i] = fe
	}
	return out
}

// Validator accumulates field errors. The zero value is ready to use.
type Validator struct {
	errors []Error
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// Fail records an error for field.
func (v *Validator) Fail(field string, value any, format string, args ...any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: fmt.Sprintf(format, args...)})
}

// Check records err, if any, against field.
func (v *Validator) Check(field string, value any, err error) {
	if err != nil {
		v.Fail(field, value, "%s", err)
	}
}

// Valid reports whether no error was recorded.
func (v *Validator) Valid() bool { return len(v.errors) == 0 }

// Err returns a snapshot of the recorded errors, or nil.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// Between checks lo <= value <= hi.
func Between[T cmp.Ordered](v *Validator, field string, value, lo, hi T) {
	if value < lo || value > hi {
		v.Fail(field, value, "must be between %v and %v, got %v", lo, hi, value)
	}
}

// AtLeast checks value >= lo.
func AtLeast[T cmp.Ordered](v *Validator, field string, value, lo T) {
	if value < lo {
		v.Fail(field, value, "must be at least %v, got %v", lo, value)
	}
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.Fail(field, value, "cannot be empty")
	}
}

// OneOf checks value against a fixed set.
func (v *Validator) OneOf(field, value string, allowed ...string) {
	if !slices.Contains(allowed, value) {
		v.Fail(field, value, "must be one of %q, got %q", allowed, value)
	}
}

// LogLevel accepts the levels the logger is configured with.
func (v *Validator) LogLevel(field, value string) {
	lvl, err := zerolog.ParseLevel(value)
	if err != nil || value == "" || lvl < zerolog.DebugLevel || lvl > zerolog.ErrorLevel {
		v.Fail(field, value, "must be one of debug, info, warn, error, got %q", value)
	}
}

// URL checks for an absolute URL with a host and one of schemes.
func (v *Validator) URL(field, value string, schemes ...string) {
	u, err := url.Parse(value)
	switch {
	case value == "":
		v.Fail(field, value, "URL cannot be empty")
	case err != nil:
		v.Fail(field, value, "invalid URL: %v", err)
	case u.Host == "":
		v.Fail(field, value, "URL must have a host")
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.Fail(field, value, "unsupported URL scheme %q (allowed: %v)", u.Scheme, schemes)
	}
}

// ListenAddr checks host:port with a numeric port; the host may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.Fail(field, addr, "invalid listen address: %v", err)
		return
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		v.Fail(field, addr, "port must be between 1 and 65535, got %q", port)
	}
}

// Directory rejects traversal and paths that exist but are not directories.
// A missing directory is fine; it is created on startup.
func (v *Validator) Directory(field, path string) {
	if path == "" {
		v.Fail(field, path, "directory path cannot be empty")
		return
	}
	if slices.Contains(strings.Split(filepath.ToSlash(path), "/"), "..") {
		v.Fail(field, path, "path contains traversal sequences (..)")
		return
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		v.Fail(field, path, "cannot access directory: %v", err)
	case !info.IsDir():
		v.Fail(field, path, "path is not a directory")
	}
}

// File requires path to name an existing regular file.
func (v *Validator) File(field, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		v.Fail(field, path, "cannot access file: %v", err)
	case info.IsDir():
		v.Fail(field, path, "path is a directory, expected file")
	}
}
