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

package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudweave/engine/pkg/store"
)

func TestSubmit_ReturnsAssignedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/workflows" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"id": "abc123"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	id, err := c.Submit(context.Background(), []byte("id: x\nname: x\nsteps: []"), nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q, want abc123", id)
	}
}

func TestStatus_DecodesWorkflowState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(store.WorkflowState{ID: "abc123", Status: store.WorkflowRunning})
	}))
	defer srv.Close()

	c := New(srv.URL)
	state, err := c.Status(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if state.Status != store.WorkflowRunning {
		t.Errorf("Status = %q, want RUNNING", state.Status)
	}
}

func TestList_SendsFilterAsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "FAILED" {
			t.Errorf("status query = %q, want FAILED", r.URL.Query().Get("status"))
		}
		json.NewEncoder(w).Encode([]*store.WorkflowState{{ID: "1", Status: store.WorkflowFailed}})
	}))
	defer srv.Close()

	c := New(srv.URL)
	workflows, err := c.List(context.Background(), store.Filter{Status: store.WorkflowFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(workflows) != 1 {
		t.Fatalf("len(workflows) = %d, want 1", len(workflows))
	}
}

func TestCancel_PropagatesDaemonError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Cancel(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}
