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

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}
	if c.active == nil {
		t.Error("expected active workflow set to be initialized")
	}
}

func TestCollector_RecordWorkflowStart(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	ctx := context.Background()
	c.RecordWorkflowStart(ctx, "wf-1")

	c.activeMu.RLock()
	_, exists := c.active["wf-1"]
	c.activeMu.RUnlock()
	if !exists {
		t.Error("expected workflow to be tracked as active")
	}
}

func TestCollector_RecordWorkflowComplete(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	ctx := context.Background()
	c.RecordWorkflowStart(ctx, "wf-2")
	c.RecordWorkflowComplete(ctx, "wf-2", "COMPLETED", 5*time.Second)

	c.activeMu.RLock()
	_, exists := c.active["wf-2"]
	c.activeMu.RUnlock()
	if exists {
		t.Error("expected workflow to no longer be tracked as active")
	}

	count := testutil.ToFloat64(c.workflowsTotal.WithLabelValues("COMPLETED"))
	if count != 1 {
		t.Errorf("engine_workflows_total{status=COMPLETED} = %v, want 1", count)
	}
}

func TestCollector_RecordStepComplete(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.RecordStepComplete(context.Background(), "inline", "COMPLETED", 100*time.Millisecond)
	c.RecordStepComplete(context.Background(), "inline", "FAILED", 50*time.Millisecond)

	completed := testutil.ToFloat64(c.stepsTotal.WithLabelValues("inline", "COMPLETED"))
	failed := testutil.ToFloat64(c.stepsTotal.WithLabelValues("inline", "FAILED"))
	if completed != 1 || failed != 1 {
		t.Errorf("engine_steps_total = (completed=%v, failed=%v), want (1, 1)", completed, failed)
	}
}

type fakeQueueSource struct {
	depth, inFlight int
}

func (f fakeQueueSource) QueueStatus() (int, int) {
	return f.depth, f.inFlight
}

func TestCollector_SetQueueSource(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector() error = %v", err)
	}

	c.SetQueueSource(fakeQueueSource{depth: 3, inFlight: 2})

	depth, inFlight := c.queueStatus()
	if depth != 3 || inFlight != 2 {
		t.Errorf("queueStatus() = (%d, %d), want (3, 2)", depth, inFlight)
	}
}
