// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	// Workflow attributes
	WorkflowKindKey    = "workflow.kind"
	WorkflowRunIDKey   = "workflow.run_id"
	WorkflowStepKey    = "workflow.step"
	WorkflowAttemptKey = "workflow.attempt"
	WorkflowReplayKey  = "workflow.replayed"

	// Generation attributes
	ProjectIDKey    = "generation.project_id"
	ScreenIDKey     = "generation.screen_id"
	ThemeKey        = "generation.theme"
	TotalScreensKey = "generation.total_screens"

	// Provider attributes
	ProviderModelKey  = "provider.model"
	ProviderOpKey     = "provider.operation"
	ProviderRoundsKey = "provider.tool_rounds"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// StepAttributes describes one workflow step attempt.
func StepAttributes(kind, runID, step string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(WorkflowKindKey, kind),
		attribute.String(WorkflowRunIDKey, runID),
		attribute.String(WorkflowStepKey, step),
		attribute.Int(WorkflowAttemptKey, attempt),
	}
}

// GenerationAttributes omits empty values.
func GenerationAttributes(projectID, screenID, theme string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if projectID != "" {
		attrs = append(attrs, attribute.String(ProjectIDKey, projectID))
	}
	if screenID != "" {
		attrs = append(attrs, attribute.String(ScreenIDKey, screenID))
	}
	if theme != "" {
		attrs = append(attrs, attribute.String(ThemeKey, theme))
	}
	return attrs
}

func ProviderAttributes(model, op string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProviderModelKey, model),
		attribute.String(ProviderOpKey, op),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
