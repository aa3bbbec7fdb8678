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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents a blueprint or template that failed structural
// checks. Use this for malformed workflow definitions, missing required
// fields, or constraint violations caught before execution starts.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
// Use this when a requested workflow, deployment, or resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "deployment", "provider")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConnectionError represents a cloud provider backend that is unreachable,
// unauthenticated, or was used before Connect succeeded.
type ConnectionError struct {
	// Provider is the name of the cloud provider (e.g., "mock", "kubernetes")
	Provider string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("connection error (%s): %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// DeploymentError represents a provider refusing to create, update, or
// delete a deployment, typically because its template failed validation.
type DeploymentError struct {
	// DeploymentID is the deployment the error concerns, empty before creation
	DeploymentID string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *DeploymentError) Error() string {
	if e.DeploymentID != "" {
		return fmt.Sprintf("deployment %s: %s", e.DeploymentID, e.Message)
	}
	return fmt.Sprintf("deployment error: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DeploymentError) Unwrap() error {
	return e.Cause
}

// OperationError represents a provider operation that is unknown, or one
// that failed to complete against a deployment that was not in a runnable
// state.
type OperationError struct {
	// DeploymentID is the deployment the operation targeted
	DeploymentID string

	// Operation is the operation name (e.g., "start", "restart", "scale")
	Operation string

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %q on deployment %s: %s", e.Operation, e.DeploymentID, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// ExecutionError represents a step executor raising during Execute.
// The workflow engine records its message in the step's
// StepState.ErrorMessage and marks the step FAILED.
type ExecutionError struct {
	// StepID is the step that failed
	StepID string

	// Message is the human-readable error description
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("step %s execution failed: %s", e.StepID, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
// Use this for unknown provider types, duplicate provider names, or
// invalid scheduler/config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "providers.aws", "scheduler.max_concurrent_workflows")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents a workflow that exceeded its configured
// max_workflow_timeout while running.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "workflow run", "step execution")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// CancelledError represents a workflow that reached its CANCELLED terminal
// status because a caller invoked cancellation while it was running.
type CancelledError struct {
	// WorkflowID is the workflow that was cancelled
	WorkflowID string

	// Reason is an optional human-readable cancellation reason
	Reason string
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("workflow %s cancelled: %s", e.WorkflowID, e.Reason)
	}
	return fmt.Sprintf("workflow %s cancelled", e.WorkflowID)
}

// InternalError represents a state store I/O failure or an invariant the
// state manager detected being violated. These are not retried by the
// scheduler; they indicate the durable store or the process itself is
// unhealthy.
type InternalError struct {
	// Message is the human-readable error description
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *InternalError) Unwrap() error {
	return e.Cause
}
