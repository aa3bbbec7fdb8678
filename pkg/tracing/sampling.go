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
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// newSampler builds an OpenTelemetry sampler from cfg. Rate sampling
// disabled (or Rate >= 1.0) samples everything; otherwise a
// ratio-based sampler is used, optionally wrapped to force-sample any
// span whose start attributes carry engine.status=error. endSpan sets
// engine.status only when a span ends, after the sampling decision, so
// spans opened by StartWorkflowRun and StartStep are sampled by the
// rate alone.
func newSampler(cfg SamplingConfig) sdktrace.Sampler {
	var base sdktrace.Sampler
	switch {
	case !cfg.Enabled || cfg.Rate >= 1.0:
		base = sdktrace.AlwaysSample()
	case cfg.Rate <= 0.0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(cfg.Rate)
	}

	if !cfg.AlwaysSampleErrors {
		return base
	}
	return &errorAwareSampler{base: base}
}

// errorAwareSampler forces RecordAndSample whenever the span's
// attributes carry engine.status=error, deferring to base otherwise.
type errorAwareSampler struct {
	base sdktrace.Sampler
}

func (s *errorAwareSampler) ShouldSample(params sdktrace.SamplingParameters) sdktrace.SamplingResult {
	for _, attr := range params.Attributes {
		if attr.Key == "engine.status" && attr.Value.AsString() == "error" {
			return sdktrace.SamplingResult{
				Decision:   sdktrace.RecordAndSample,
				Tracestate: trace.SpanContextFromContext(params.ParentContext).TraceState(),
			}
		}
	}
	return s.base.ShouldSample(params)
}

func (s *errorAwareSampler) Description() string {
	return "ErrorAwareSampler{base=" + s.base.Description() + "}"
}
