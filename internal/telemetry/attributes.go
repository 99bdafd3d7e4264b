// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared across spans.
const (
	GuideChannelsKey   = "guide.channels"
	GuideRangeStartKey = "guide.range_start"
	GuideRangeStopKey  = "guide.range_stop"
	GuideResultsKey    = "guide.results"
	GuideIndexKey      = "guide.index"

	IngestSourceKey   = "ingest.source"
	IngestRunIDKey    = "ingest.run_id"
	IngestOutcomeKey  = "ingest.outcome"
	IngestProgramsKey = "ingest.programs"
	IngestOrphansKey  = "ingest.orphans"

	OpenWebIFOperationKey = "openwebif.operation"
	OpenWebIFServiceKey   = "openwebif.service_ref"
	OpenWebIFEventsKey    = "openwebif.events"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// RangeAttributes describes a queried time range. A zero stop means
// open-ended and is omitted.
func RangeAttributes(channels int, start, stop time.Time) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int(GuideChannelsKey, channels)}
	if !start.IsZero() {
		attrs = append(attrs, attribute.Int64(GuideRangeStartKey, start.Unix()))
	}
	if !stop.IsZero() {
		attrs = append(attrs, attribute.Int64(GuideRangeStopKey, stop.Unix()))
	}
	return attrs
}

// IngestAttributes describes an ingestion run.
func IngestAttributes(source, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(IngestSourceKey, source),
		attribute.String(IngestRunIDKey, runID),
	}
}

// OpenWebIFAttributes describes a receiver request.
func OpenWebIFAttributes(operation, serviceRef string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(OpenWebIFOperationKey, operation)}
	if serviceRef != "" {
		attrs = append(attrs, attribute.String(OpenWebIFServiceKey, serviceRef))
	}
	return attrs
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
