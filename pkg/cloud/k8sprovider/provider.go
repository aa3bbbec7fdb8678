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

// Package k8sprovider proves cloud.Provider is pluggable beyond the
// mock: it satisfies the full interface but implements only the
// identity/connection surface. CreateDeployment, UpdateDeployment,
// ExecuteOperation, GetLogs and GetMetrics return ConnectionError and
// GetDeploymentStatus returns NotFoundError; DeleteDeployment and
// ListDeployments succeed without doing anything, and the descriptor
// methods return fixed values. None of them talks to a real cluster.
// A concrete Kubernetes backend is out of scope; this
// stub exists so the contract is exercised by more than one
// implementation.
package k8sprovider

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/cloudweave/engine/pkg/cloud"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

// Config names the kubeconfig context this stub would connect to, were
// it backed by a real cluster.
type Config struct {
	Context   string
	Namespace string
}

// Provider is a contract-proving stub: Connect/Disconnect/
// ValidateConnection/GetProviderInfo work against in-memory state; the
// other methods behave as described in the package comment.
type Provider struct {
	cfg       Config
	connected bool
}

// New creates a Provider for the given Config.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) Connect(ctx context.Context) error {
	p.connected = true
	return nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.connected = false
	return nil
}

func (p *Provider) ValidateConnection(ctx context.Context) (bool, error) {
	return p.connected, nil
}

func (p *Provider) notImplemented(op string) error {
	return &engineerrors.ConnectionError{
		Provider: "kubernetes",
		Message:  op + " requires a real cluster connection, which this stub does not provide",
	}
}

func (p *Provider) CreateDeployment(ctx context.Context, name string, template map[string]any, inputs map[string]any) (string, error) {
	return "", p.notImplemented("create_deployment")
}

func (p *Provider) DeleteDeployment(ctx context.Context, deploymentID string) error {
	return nil
}

func (p *Provider) GetDeploymentStatus(ctx context.Context, deploymentID string) (*cloud.DeploymentStatus, error) {
	return nil, &engineerrors.NotFoundError{Resource: "deployment", ID: deploymentID}
}

func (p *Provider) ListDeployments(ctx context.Context, filter *cloud.DeploymentFilter) ([]*cloud.DeploymentStatus, error) {
	return nil, nil
}

func (p *Provider) UpdateDeployment(ctx context.Context, deploymentID string, template map[string]any, inputs map[string]any) error {
	return p.notImplemented("update_deployment")
}

func (p *Provider) ExecuteOperation(ctx context.Context, deploymentID, operation string, inputs map[string]any) (map[string]any, error) {
	return nil, p.notImplemented("execute_operation")
}

func (p *Provider) GetLogs(ctx context.Context, deploymentID, resourceID string, start, end time.Time) ([]string, error) {
	return nil, p.notImplemented("get_logs")
}

func (p *Provider) GetMetrics(ctx context.Context, deploymentID, resourceID string, metricNames []string, start, end time.Time) (map[string][]float64, error) {
	return nil, p.notImplemented("get_metrics")
}

func (p *Provider) ValidateTemplate(ctx context.Context, template map[string]any) ([]string, error) {
	return []string{"kubernetes provider stub cannot validate templates"}, nil
}

func (p *Provider) GetResourceTypes(ctx context.Context) ([]string, error) {
	return []string{"deployment", "service", "configmap", "pod"}, nil
}

func (p *Provider) GetOperationTypes(ctx context.Context) ([]string, error) {
	return []string{"scale", "restart", "rollout_status"}, nil
}

func (p *Provider) GetProviderInfo(ctx context.Context) (*cloud.ProviderInfo, error) {
	return &cloud.ProviderInfo{
		Type:        "kubernetes",
		Name:        "kubernetes (" + p.cfg.Context + ")",
		Description: "contract-proving stub; does not connect to a real cluster",
		Version:     "stub",
	}, nil
}

// resourceMetadata adapts a Kubernetes object's identifying fields
// into the generic map cloud.ResourceStatus.Metadata carries, the one
// place this stub exercises k8s.io/apimachinery's typed object
// metadata rather than a hand-rolled map.
func resourceMetadata(meta metav1.ObjectMeta) map[string]any {
	return map[string]any{
		"namespace":       meta.Namespace,
		"resource_version": meta.ResourceVersion,
		"uid":             string(meta.UID),
	}
}
