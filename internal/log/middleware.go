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

package log

import (
	"log/slog"
	"time"
)

// OperationRequest describes a provider operation call for logging
// purposes, e.g. Provider.ExecuteOperation or Provider.CreateDeployment.
type OperationRequest struct {
	// Operation is the operation name (e.g., "create_deployment", "restart").
	Operation string

	// Provider is the provider type handling the call.
	Provider string

	// DeploymentID is the deployment targeted, empty for create calls.
	DeploymentID string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// OperationResponse describes the outcome of a provider operation call.
type OperationResponse struct {
	// Success indicates whether the call completed without error.
	Success bool

	// Error is the error message if the call failed.
	Error string

	// DurationMs is the duration of the call in milliseconds.
	DurationMs int64

	// Metadata contains additional response metadata.
	Metadata map[string]interface{}
}

// LogOperationRequest logs an outgoing provider operation call.
func LogOperationRequest(logger *slog.Logger, req *OperationRequest) {
	attrs := []any{
		"event", "operation_request",
		"operation", req.Operation,
		"provider", req.Provider,
	}

	if req.DeploymentID != "" {
		attrs = append(attrs, "deployment_id", req.DeploymentID)
	}

	for k, v := range req.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("provider operation started", attrs...)
}

// LogOperationResponse logs the outcome of a provider operation call.
func LogOperationResponse(logger *slog.Logger, req *OperationRequest, resp *OperationResponse) {
	attrs := []any{
		"event", "operation_response",
		"operation", req.Operation,
		"provider", req.Provider,
		"success", resp.Success,
		"duration_ms", resp.DurationMs,
	}

	if req.DeploymentID != "" {
		attrs = append(attrs, "deployment_id", req.DeploymentID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
	}

	for k, v := range resp.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "provider operation completed"

	if !resp.Success {
		level = slog.LevelError
		message = "provider operation failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// OperationMiddleware wraps a provider call with logging, recording the
// request when it starts and the response when it completes.
type OperationMiddleware struct {
	logger *slog.Logger
}

// NewOperationMiddleware creates a new operation logging middleware.
func NewOperationMiddleware(logger *slog.Logger) *OperationMiddleware {
	return &OperationMiddleware{
		logger: logger,
	}
}

// Handler wraps a function that performs a provider call.
// It logs the request and response automatically.
func (m *OperationMiddleware) Handler(req *OperationRequest, handler func() error) error {
	start := time.Now()

	LogOperationRequest(m.logger, req)

	err := handler()

	duration := time.Since(start).Milliseconds()

	resp := &OperationResponse{
		Success:    err == nil,
		DurationMs: duration,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogOperationResponse(m.logger, req, resp)

	return err
}

// HandlerWithMetadata wraps a function that performs a provider call and
// returns metadata (e.g. the operation result map from ExecuteOperation).
func (m *OperationMiddleware) HandlerWithMetadata(req *OperationRequest, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	LogOperationRequest(m.logger, req)

	metadata, err := handler()

	duration := time.Since(start).Milliseconds()

	resp := &OperationResponse{
		Success:    err == nil,
		DurationMs: duration,
		Metadata:   metadata,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	LogOperationResponse(m.logger, req, resp)

	return metadata, err
}
