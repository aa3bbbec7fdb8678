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

// Package daemonapi exposes the daemon's HTTP surface: health and
// Prometheus metrics endpoints, and the workflow submit/status/list/
// cancel operations the CLI's status/list/cancel subcommands talk to.
package daemonapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cloudweave/engine/pkg/blueprint"
	"github.com/cloudweave/engine/pkg/scheduler"
	"github.com/cloudweave/engine/pkg/state"
	"github.com/cloudweave/engine/pkg/store"
)

// Router wires the daemon's HTTP routes against a Scheduler and State
// Manager. It implements http.Handler.
type Router struct {
	mux       *http.ServeMux
	scheduler *scheduler.Scheduler
	manager   *state.Manager
	startedAt time.Time
}

// NewRouter builds a Router. g is the registry the metrics collector was
// built against; cmd/engined passes its own prometheus.NewRegistry().
func NewRouter(sched *scheduler.Scheduler, manager *state.Manager, g promhttp.Gatherer) *Router {
	r := &Router{
		mux:       http.NewServeMux(),
		scheduler: sched,
		manager:   manager,
		startedAt: time.Now(),
	}

	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.Handle("GET /metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.mux.HandleFunc("POST /v1/workflows", r.handleSubmit)
	r.mux.HandleFunc("GET /v1/workflows", r.handleList)
	r.mux.HandleFunc("GET /v1/workflows/{id}", r.handleGet)
	r.mux.HandleFunc("POST /v1/workflows/{id}/cancel", r.handleCancel)

	return r
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	schedStatus := r.scheduler.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                   "ok",
		"uptime":                   time.Since(r.startedAt).String(),
		"queue_depth":              schedStatus.QueueDepth,
		"in_flight":                schedStatus.InFlight,
		"max_concurrent_workflows": schedStatus.MaxConcurrentWorkflows,
		"scheduler_running":        schedStatus.Running,
	})
}

// submitRequest is the POST /v1/workflows body: a blueprint definition
// plus the workflow's runtime inputs.
type submitRequest struct {
	Definition string         `json:"definition"`
	Inputs     map[string]any `json:"inputs,omitempty"`
}

func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	def, err := blueprint.ParseYAML([]byte(body.Definition))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid blueprint: "+err.Error())
		return
	}

	workflowID := newWorkflowID()
	if err := r.scheduler.Submit(req.Context(), workflowID, def, "", body.Inputs); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to submit workflow: "+err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"id": workflowID})
}

func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	wf, err := r.manager.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (r *Router) handleList(w http.ResponseWriter, req *http.Request) {
	filter := store.Filter{}
	if s := req.URL.Query().Get("status"); s != "" {
		filter.Status = store.WorkflowStatus(s)
	}
	if n := req.URL.Query().Get("name"); n != "" {
		filter.Name = n
	}

	workflows, err := r.manager.List(req.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.scheduler.Cancel(req.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// newWorkflowID mirrors the teacher's run-id convention: a truncated
// UUID, short enough to read in CLI output and logs.
func newWorkflowID() string {
	return uuid.New().String()[:8]
}
