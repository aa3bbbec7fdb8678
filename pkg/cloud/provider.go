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

// Package cloud defines the provider contract that every cloud backend
// (mock, Kubernetes, or otherwise) implements to create, inspect, and
// operate on deployments described by a blueprint.
package cloud

import (
	"context"
	"strings"
	"time"
)

// ResourceState enumerates the lifecycle states of a single resource
// within a deployment.
type ResourceState string

const (
	ResourceStateCreating ResourceState = "creating"
	ResourceStateRunning  ResourceState = "running"
	ResourceStateUpdating ResourceState = "updating"
	ResourceStateDeleting ResourceState = "deleting"
	ResourceStateDeleted  ResourceState = "deleted"
	ResourceStateFailed   ResourceState = "failed"
)

// DeploymentState enumerates the lifecycle states of a deployment.
type DeploymentState string

const (
	DeploymentStateCreating DeploymentState = "creating"
	DeploymentStateRunning  DeploymentState = "running"
	DeploymentStateUpdating DeploymentState = "updating"
	DeploymentStateDeleting DeploymentState = "deleting"
	DeploymentStateDeleted  DeploymentState = "deleted"
	DeploymentStateFailed   DeploymentState = "failed"
)

// ResourceStatus describes a single provisioned resource within a
// deployment.
type ResourceStatus struct {
	ID        string
	Name      string
	Type      string
	State     ResourceState
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any
}

// DeploymentStatus describes the full state of a deployment, including
// the resources it owns.
type DeploymentStatus struct {
	ID           string
	Name         string
	State        DeploymentState
	Resources    []ResourceStatus
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Metadata     map[string]any
}

// DeploymentFilter narrows a ListDeployments call.
type DeploymentFilter struct {
	// State restricts results to deployments in this state, if non-empty.
	State DeploymentState

	// NameContains restricts results to deployments whose name contains
	// this substring, if non-empty.
	NameContains string
}

// Matches reports whether a deployment satisfies the filter. A nil
// filter matches everything.
func (f *DeploymentFilter) Matches(d *DeploymentStatus) bool {
	if f == nil {
		return true
	}
	if f.State != "" && d.State != f.State {
		return false
	}
	if f.NameContains != "" && !strings.Contains(d.Name, f.NameContains) {
		return false
	}
	return true
}

// ProviderInfo describes a provider implementation's identity and
// capabilities.
type ProviderInfo struct {
	Type        string
	Name        string
	Description string
	Version     string
}

// Provider is the contract a cloud backend implements to create,
// inspect, and operate on deployments described by a blueprint.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Connect establishes the provider's connection to its backend.
	// Must be called before any other method.
	Connect(ctx context.Context) error

	// Disconnect tears down the provider's connection. After
	// Disconnect, the provider must be reconnected before further use.
	Disconnect(ctx context.Context) error

	// ValidateConnection reports whether the provider's connection is
	// currently usable.
	ValidateConnection(ctx context.Context) (bool, error)

	// CreateDeployment provisions a new deployment from a template and
	// returns its deployment ID. The deployment begins in
	// DeploymentStateCreating and transitions asynchronously.
	CreateDeployment(ctx context.Context, name string, template map[string]any, inputs map[string]any) (string, error)

	// DeleteDeployment tears down a deployment and all of its resources.
	DeleteDeployment(ctx context.Context, deploymentID string) error

	// GetDeploymentStatus returns the current status of a deployment.
	GetDeploymentStatus(ctx context.Context, deploymentID string) (*DeploymentStatus, error)

	// ListDeployments returns deployments matching the given filter.
	// A nil or zero-value filter returns all deployments.
	ListDeployments(ctx context.Context, filter *DeploymentFilter) ([]*DeploymentStatus, error)

	// UpdateDeployment updates an existing deployment's template and
	// inputs in place.
	UpdateDeployment(ctx context.Context, deploymentID string, template map[string]any, inputs map[string]any) error

	// ExecuteOperation runs a named operation (e.g. "restart", "scale")
	// against a deployment and returns operation-specific result data.
	// The deployment must be in DeploymentStateRunning.
	ExecuteOperation(ctx context.Context, deploymentID, operation string, inputs map[string]any) (map[string]any, error)

	// GetLogs returns log lines for a deployment, optionally scoped to
	// a single resource and time range. A zero start or end time means
	// unbounded in that direction.
	GetLogs(ctx context.Context, deploymentID, resourceID string, start, end time.Time) ([]string, error)

	// GetMetrics returns time series metric data for a deployment,
	// optionally scoped to a single resource, metric name set, and
	// time range. Series are not aligned by index across metric names;
	// each may have its own length and cadence.
	GetMetrics(ctx context.Context, deploymentID, resourceID string, metricNames []string, start, end time.Time) (map[string][]float64, error)

	// ValidateTemplate checks a deployment template for structural
	// errors and returns a list of human-readable problems. An empty
	// slice (with a nil error) means the template is valid.
	ValidateTemplate(ctx context.Context, template map[string]any) ([]string, error)

	// GetResourceTypes returns the resource types this provider can
	// provision.
	GetResourceTypes(ctx context.Context) ([]string, error)

	// GetOperationTypes returns the operation names this provider
	// supports via ExecuteOperation.
	GetOperationTypes(ctx context.Context) ([]string, error)

	// GetProviderInfo returns static identity and capability
	// information about this provider.
	GetProviderInfo(ctx context.Context) (*ProviderInfo, error)
}
