// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("upstream: resource not found")
	ErrForbidden           = errors.New("upstream: access forbidden")
	ErrUpstreamUnavailable = errors.New("upstream: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("upstream: internal error (5xx)")
	ErrUpstreamBadResponse = errors.New("upstream: invalid response format or malformed data")
	ErrTimeout             = errors.New("upstream: request timed out")
)

const maxBodyInError = 256

// OWIError wraps a sentinel with the failing operation and what the receiver
// answered.
type OWIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error // lower-level cause, e.g. a net.Error
}

func (e *OWIError) Error() string {
	msg := fmt.Sprintf("openwebif: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *OWIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

var secretPattern = regexp.MustCompile(`(?i)(token|sid|password|passwd|session)=([^\s&"']+)`)

func redact(s string) string {
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}

// wrapError classifies a transport error or non-200 status into an OWIError.
func wrapError(op string, err error, status int, body []byte) error {
	e := &OWIError{Operation: op, Status: status, Err: err}
	if len(body) > 0 {
		b := body
		if len(b) > maxBodyInError {
			b = b[:maxBodyInError]
		}
		e.Body = redact(string(b))
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		e.Sentinel = ErrTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		e.Sentinel = ErrTimeout
	case err != nil && status == 0:
		e.Sentinel = ErrUpstreamUnavailable
	case status == http.StatusNotFound:
		e.Sentinel = ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Sentinel = ErrForbidden
	case status >= http.StatusInternalServerError:
		e.Sentinel = ErrUpstreamError
	default:
		e.Sentinel = ErrUpstreamBadResponse
	}
	return e
}

// statusLabel maps an error to the metrics status label.
func statusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUpstreamError):
		return "upstream_error"
	case errors.Is(err, ErrUpstreamBadResponse):
		return "bad_response"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "unavailable"
	}
}
