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

// Package metrics instruments the engine with Prometheus counters,
// histograms and gauges: workflow/step totals and durations, plus
// function-backed gauges for the scheduler's queue depth and in-flight
// count.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueSource reports the scheduler's current admission-queue depth and
// in-flight count, satisfied by *scheduler.Scheduler without pkg/metrics
// importing it.
type QueueSource interface {
	QueueStatus() (queueDepth, inFlight int)
}

// Collector exposes engine_* Prometheus instruments. The zero value is
// not usable; construct with NewCollector.
type Collector struct {
	workflowsTotal   *prometheus.CounterVec
	stepsTotal       *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	stepDuration     *prometheus.HistogramVec

	activeMu sync.RWMutex
	active   map[string]struct{}

	queueSourceMu sync.RWMutex
	queueSource   QueueSource
}

// NewCollector registers engine_* instruments against reg and returns a
// Collector backed by them. cmd/engined and the tests each pass a fresh
// prometheus.NewRegistry(), which also avoids cross-test collisions.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{active: make(map[string]struct{})}
	factory := promauto.With(reg)

	c.workflowsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_workflows_total",
		Help: "Total number of workflow runs that reached a terminal status, by status.",
	}, []string{"status"})

	c.stepsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_steps_total",
		Help: "Total number of workflow steps that reached a terminal status, by step type and status.",
	}, []string{"step_type", "status"})

	c.workflowDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_workflow_duration_seconds",
		Help:    "Workflow run duration in seconds, by terminal status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	c.stepDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "engine_step_duration_seconds",
		Help:    "Step execution duration in seconds, by step type and terminal status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step_type", "status"})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "engine_active_workflows",
		Help: "Number of workflows currently between start and terminal status.",
	}, func() float64 {
		c.activeMu.RLock()
		defer c.activeMu.RUnlock()
		return float64(len(c.active))
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "engine_queue_depth",
		Help: "Number of workflows admitted to the scheduler but not yet dispatched.",
	}, func() float64 {
		depth, _ := c.queueStatus()
		return float64(depth)
	})

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "engine_in_flight_workflows",
		Help: "Number of workflows currently dispatched by the scheduler.",
	}, func() float64 {
		_, inFlight := c.queueStatus()
		return float64(inFlight)
	})

	return c, nil
}

func (c *Collector) queueStatus() (queueDepth, inFlight int) {
	c.queueSourceMu.RLock()
	source := c.queueSource
	c.queueSourceMu.RUnlock()
	if source == nil {
		return 0, 0
	}
	return source.QueueStatus()
}

// SetQueueSource wires the scheduler the engine_queue_depth and
// engine_in_flight_workflows gauges report against.
func (c *Collector) SetQueueSource(source QueueSource) {
	c.queueSourceMu.Lock()
	c.queueSource = source
	c.queueSourceMu.Unlock()
}

// RecordWorkflowStart marks workflowID active for engine_active_workflows.
func (c *Collector) RecordWorkflowStart(ctx context.Context, workflowID string) {
	c.activeMu.Lock()
	c.active[workflowID] = struct{}{}
	c.activeMu.Unlock()
}

// RecordWorkflowComplete records a workflow's terminal status and duration.
func (c *Collector) RecordWorkflowComplete(ctx context.Context, workflowID, status string, duration time.Duration) {
	c.activeMu.Lock()
	delete(c.active, workflowID)
	c.activeMu.Unlock()

	c.workflowsTotal.WithLabelValues(status).Inc()
	c.workflowDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordStepComplete records a step's terminal status and duration.
func (c *Collector) RecordStepComplete(ctx context.Context, stepType, status string, duration time.Duration) {
	c.stepsTotal.WithLabelValues(stepType, status).Inc()
	c.stepDuration.WithLabelValues(stepType, status).Observe(duration.Seconds())
}
