// Copyright 2025 The CloudWeave Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartWorkflowRun opens the root span for one workflow run.
func StartWorkflowRun(ctx context.Context, tracer trace.Tracer, workflowID, workflowName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("workflow.run: %s", workflowName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("engine.workflow_id", workflowID),
			attribute.String("engine.workflow_name", workflowName),
			attribute.String("engine.span_type", "workflow.run"),
		),
	)
}

// StartStep opens a child span for one step execution.
func StartStep(ctx context.Context, tracer trace.Tracer, stepID, stepType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("step: %s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("engine.step_id", stepID),
			attribute.String("engine.step_type", stepType),
			attribute.String("engine.span_type", "workflow.step"),
		),
	)
}

// EndWorkflowRun records the run's terminal status on span and ends
// it. status should be the store.WorkflowStatus string value.
func EndWorkflowRun(span trace.Span, status string, cause error) {
	endSpan(span, status, cause)
}

// EndStep records the step's terminal status on span and ends it.
// status should be the store.StepStatus string value.
func EndStep(span trace.Span, status string, cause error) {
	endSpan(span, status, cause)
}

func endSpan(span trace.Span, status string, cause error) {
	span.SetAttributes(attribute.String("engine.status", status))
	if cause != nil {
		span.RecordError(cause)
		span.SetStatus(codes.Error, cause.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
