// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

// correlation is the set of IDs carried by a context. Each With* call stores
// a copy, so parents never observe IDs set on children.
type correlation struct {
	requestID string
	runID     string
}

type correlationKey struct{}

func correlationFrom(ctx context.Context) correlation {
	if ctx == nil {
		return correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

func withCorrelation(ctx context.Context, update func(*correlation)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := correlationFrom(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// ContextWithRequestID tags ctx with the ID of an ops request.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.requestID = id })
}

// ContextWithRunID tags ctx with an ingestion run ID.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.runID = id })
}

func RequestIDFromContext(ctx context.Context) string { return correlationFrom(ctx).requestID }

func RunIDFromContext(ctx context.Context) string { return correlationFrom(ctx).runID }

// WithContext adds the correlation IDs found in ctx to logger.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	c := correlationFrom(ctx)
	if c == (correlation{}) {
		return logger
	}
	b := logger.With()
	if c.requestID != "" {
		b = b.Str(FieldRequestID, c.requestID)
	}
	if c.runID != "" {
		b = b.Str(FieldRunID, c.runID)
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent plus the IDs found in ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns the logger attached with zerolog's WithContext as is,
// or the base logger enriched with the IDs found in ctx. Attached loggers
// carry their own correlation fields.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
			return l
		}
	}
	l := WithContext(ctx, Base())
	return &l
}
