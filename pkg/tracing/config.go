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

// Package tracing instruments workflow runs and step executions with
// OpenTelemetry spans: one root span per workflow run, one child span
// per step, exported to an OTLP collector or the console.
package tracing

import "time"

// Config controls whether tracing is active and where spans go.
type Config struct {
	// Enabled activates tracing. Opt-in: false by default.
	Enabled bool

	// ServiceName identifies this process in exported spans.
	ServiceName string

	// ServiceVersion is the running build's version string.
	ServiceVersion string

	// Sampling configures which traces are recorded.
	Sampling SamplingConfig

	// Exporter configures the span export destination.
	Exporter ExporterConfig

	// BatchTimeout is how often buffered spans are flushed.
	BatchTimeout time.Duration
}

// SamplingConfig controls which traces get recorded.
type SamplingConfig struct {
	// Enabled activates rate-based sampling. When false, every trace is
	// sampled.
	Enabled bool

	// Rate is the fraction of traces sampled (0.0-1.0) when Enabled.
	Rate float64

	// AlwaysSampleErrors forces sampling of any span carrying an
	// engine.status=error attribute, regardless of Rate.
	AlwaysSampleErrors bool
}

// ExporterConfig selects and configures the span export destination.
type ExporterConfig struct {
	// Type is one of "otlp-grpc", "otlp-http", or "console".
	Type string

	// Endpoint is the OTLP collector address (ignored for "console").
	Endpoint string

	// Insecure disables TLS for the OTLP exporter (development only).
	Insecure bool
}

// Default returns tracing disabled, with console export and full
// sampling, ready to enable by flipping Enabled.
func Default() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "cloudweave-engine",
		ServiceVersion: "unknown",
		Sampling: SamplingConfig{
			Enabled:            false,
			Rate:               1.0,
			AlwaysSampleErrors: true,
		},
		Exporter:     ExporterConfig{Type: "console"},
		BatchTimeout: 5 * time.Second,
	}
}
