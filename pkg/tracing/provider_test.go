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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_ConsoleExporter(t *testing.T) {
	cfg := Config{
		Enabled:        true,
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Sampling:       SamplingConfig{Enabled: false},
		Exporter:       ExporterConfig{Type: "console"},
		BatchTimeout:   time.Second,
	}

	provider, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	assert.NotNil(t, provider.Tracer())

	_, span := provider.Tracer().Start(context.Background(), "test-operation")
	span.End()

	require.NoError(t, provider.ForceFlush(context.Background()))
}

func TestNewExporter_UnknownTypeReturnsError(t *testing.T) {
	_, err := newExporter(context.Background(), ExporterConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewExporter_DefaultsToConsole(t *testing.T) {
	exporter, err := newExporter(context.Background(), ExporterConfig{})
	require.NoError(t, err)
	assert.NotNil(t, exporter)
}
