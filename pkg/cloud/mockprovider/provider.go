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

// Package mockprovider implements an in-memory cloud.Provider for
// local development and testing, simulating deployment lifecycles
// without talking to any real infrastructure.
package mockprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudweave/engine/pkg/cloud"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

var (
	resourceTypes = []string{
		"compute.instance",
		"network.subnet",
		"storage.volume",
		"database.instance",
		"container.pod",
	}
	operationTypes = []string{
		"start",
		"stop",
		"restart",
		"scale",
		"backup",
		"restore",
	}
)

type operationRecord struct {
	operation   string
	inputs      map[string]any
	startedAt   time.Time
	completedAt *time.Time
	status      string
}

type logLine struct {
	at  time.Time
	msg string
}

// Config tunes the simulated latencies of a Provider. The zero value
// is not usable directly; use Default() or New's defaults.
type Config struct {
	ConnectDelay    time.Duration
	DisconnectDelay time.Duration
	DeployDelay     time.Duration
	DeleteDelay     time.Duration
	OperationDelay  time.Duration
}

// Default returns the Config matching the reference provider's
// simulated latencies.
func Default() Config {
	return Config{
		ConnectDelay:    time.Second,
		DisconnectDelay: 500 * time.Millisecond,
		DeployDelay:     5 * time.Second,
		DeleteDelay:     3 * time.Second,
		OperationDelay:  2 * time.Second,
	}
}

// Provider is an in-memory reference implementation of cloud.Provider.
// It is safe for concurrent use.
type Provider struct {
	cfg Config

	mu          sync.Mutex
	connected   bool
	deployments map[string]*cloud.DeploymentStatus
	resources   map[string]map[string]*cloud.ResourceStatus
	operations  map[string][]*operationRecord
	logs        map[string][]logLine
	wg          sync.WaitGroup
}

// New creates a Provider with the given Config. A zero Config selects
// Default().
func New(cfg Config) *Provider {
	if cfg == (Config{}) {
		cfg = Default()
	}
	return &Provider{
		cfg:         cfg,
		deployments: make(map[string]*cloud.DeploymentStatus),
		resources:   make(map[string]map[string]*cloud.ResourceStatus),
		operations:  make(map[string][]*operationRecord),
		logs:        make(map[string][]logLine),
	}
}

// sleep blocks for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect implements cloud.Provider.
func (p *Provider) Connect(ctx context.Context) error {
	if err := sleep(ctx, p.cfg.ConnectDelay); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

// Disconnect implements cloud.Provider.
func (p *Provider) Disconnect(ctx context.Context) error {
	if err := sleep(ctx, p.cfg.DisconnectDelay); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// ValidateConnection implements cloud.Provider.
func (p *Provider) ValidateConnection(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected, nil
}

func (p *Provider) checkConnection() error {
	if !p.connected {
		return &engineerrors.ConnectionError{Provider: "mock", Message: "not connected to cloud platform"}
	}
	return nil
}

// CreateDeployment implements cloud.Provider.
func (p *Provider) CreateDeployment(ctx context.Context, name string, template map[string]any, inputs map[string]any) (string, error) {
	p.mu.Lock()
	if err := p.checkConnection(); err != nil {
		p.mu.Unlock()
		return "", err
	}
	p.mu.Unlock()

	problems, err := p.ValidateTemplate(ctx, template)
	if err != nil {
		return "", err
	}
	if len(problems) > 0 {
		return "", &engineerrors.DeploymentError{Message: fmt.Sprintf("template validation failed: %v", problems)}
	}

	deploymentID := uuid.NewString()
	now := time.Now()

	nodes, _ := template["nodes"].([]any)

	var resources []cloud.ResourceStatus
	deploymentResources := make(map[string]*cloud.ResourceStatus)
	for _, n := range nodes {
		node, _ := n.(map[string]any)
		nodeName, _ := node["name"].(string)
		nodeType, _ := node["type"].(string)
		metadata, _ := node["metadata"].(map[string]any)
		if metadata == nil {
			metadata = map[string]any{}
		}

		resourceID := uuid.NewString()
		resource := cloud.ResourceStatus{
			ID:        resourceID,
			Name:      fmt.Sprintf("%s-%s", name, nodeName),
			Type:      nodeType,
			State:     cloud.ResourceStateCreating,
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  metadata,
		}
		resources = append(resources, resource)
		r := resource
		deploymentResources[resourceID] = &r
	}

	if inputs == nil {
		inputs = map[string]any{}
	}

	deployment := &cloud.DeploymentStatus{
		ID:        deploymentID,
		Name:      name,
		State:     cloud.DeploymentStateCreating,
		Resources: resources,
		CreatedAt: now,
		StartedAt: &now,
		Metadata: map[string]any{
			"template": template,
			"inputs":   inputs,
		},
	}

	p.mu.Lock()
	p.deployments[deploymentID] = deployment
	p.resources[deploymentID] = deploymentResources
	p.operations[deploymentID] = nil
	p.logs[deploymentID] = []logLine{
		{at: now, msg: fmt.Sprintf("starting deployment %s", name)},
		{at: now, msg: "creating resources..."},
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.simulateDeployment(deploymentID)

	return deploymentID, nil
}

// simulateDeployment transitions a deployment from creating to running
// after cfg.DeployDelay, mirroring the reference provider's background
// asyncio task.
func (p *Provider) simulateDeployment(deploymentID string) {
	defer p.wg.Done()
	time.Sleep(p.cfg.DeployDelay)

	p.mu.Lock()
	defer p.mu.Unlock()

	deployment, ok := p.deployments[deploymentID]
	if !ok {
		return
	}
	now := time.Now()
	for _, r := range p.resources[deploymentID] {
		r.State = cloud.ResourceStateRunning
		r.UpdatedAt = now
	}
	deployment.State = cloud.DeploymentStateRunning
	deployment.CompletedAt = &now
	p.logs[deploymentID] = append(p.logs[deploymentID], logLine{at: now, msg: "deployment complete"})
}

// DeleteDeployment implements cloud.Provider.
func (p *Provider) DeleteDeployment(ctx context.Context, deploymentID string) error {
	p.mu.Lock()
	if err := p.checkConnection(); err != nil {
		p.mu.Unlock()
		return err
	}
	deployment, ok := p.deployments[deploymentID]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	now := time.Now()
	deployment.State = cloud.DeploymentStateDeleting
	p.logs[deploymentID] = append(p.logs[deploymentID], logLine{at: now, msg: "starting delete"})
	p.mu.Unlock()

	if err := sleep(ctx, p.cfg.DeleteDelay); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.deployments, deploymentID)
	delete(p.resources, deploymentID)
	delete(p.operations, deploymentID)
	delete(p.logs, deploymentID)
	return nil
}

// GetDeploymentStatus implements cloud.Provider.
func (p *Provider) GetDeploymentStatus(ctx context.Context, deploymentID string) (*cloud.DeploymentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkConnection(); err != nil {
		return nil, err
	}
	deployment, ok := p.deployments[deploymentID]
	if !ok {
		return nil, &engineerrors.NotFoundError{Resource: "deployment", ID: deploymentID}
	}
	cp := *deployment
	return &cp, nil
}

// ListDeployments implements cloud.Provider.
func (p *Provider) ListDeployments(ctx context.Context, filter *cloud.DeploymentFilter) ([]*cloud.DeploymentStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkConnection(); err != nil {
		return nil, err
	}

	var out []*cloud.DeploymentStatus
	for _, d := range p.deployments {
		if filter.Matches(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UpdateDeployment implements cloud.Provider.
func (p *Provider) UpdateDeployment(ctx context.Context, deploymentID string, template map[string]any, inputs map[string]any) error {
	p.mu.Lock()
	if err := p.checkConnection(); err != nil {
		p.mu.Unlock()
		return err
	}
	deployment, ok := p.deployments[deploymentID]
	if !ok {
		p.mu.Unlock()
		return &engineerrors.NotFoundError{Resource: "deployment", ID: deploymentID}
	}
	p.mu.Unlock()

	problems, err := p.ValidateTemplate(ctx, template)
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return &engineerrors.DeploymentError{DeploymentID: deploymentID, Message: fmt.Sprintf("template validation failed: %v", problems)}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	deployment.Metadata["template"] = template
	if len(inputs) > 0 {
		deployment.Metadata["inputs"] = inputs
	}
	p.logs[deploymentID] = append(p.logs[deploymentID], logLine{at: now, msg: "updated deployment configuration"})
	return nil
}

// ExecuteOperation implements cloud.Provider.
func (p *Provider) ExecuteOperation(ctx context.Context, deploymentID, operation string, inputs map[string]any) (map[string]any, error) {
	p.mu.Lock()
	if err := p.checkConnection(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	deployment, ok := p.deployments[deploymentID]
	if !ok {
		p.mu.Unlock()
		return nil, &engineerrors.NotFoundError{Resource: "deployment", ID: deploymentID}
	}
	if deployment.State != cloud.DeploymentStateRunning {
		p.mu.Unlock()
		return nil, &engineerrors.OperationError{DeploymentID: deploymentID, Operation: operation, Message: fmt.Sprintf("deployment state is %q, not running", deployment.State)}
	}

	now := time.Now()
	record := &operationRecord{operation: operation, inputs: inputs, startedAt: now, status: "running"}
	p.operations[deploymentID] = append(p.operations[deploymentID], record)
	p.logs[deploymentID] = append(p.logs[deploymentID], logLine{at: now, msg: fmt.Sprintf("executing operation %s", operation)})
	p.mu.Unlock()

	if err := sleep(ctx, p.cfg.OperationDelay); err != nil {
		return nil, err
	}

	p.mu.Lock()
	completed := time.Now()
	record.completedAt = &completed
	record.status = "completed"
	p.mu.Unlock()

	return map[string]any{"status": "success"}, nil
}

// GetLogs implements cloud.Provider.
func (p *Provider) GetLogs(ctx context.Context, deploymentID, resourceID string, start, end time.Time) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkConnection(); err != nil {
		return nil, err
	}
	if _, ok := p.deployments[deploymentID]; !ok {
		return nil, &engineerrors.NotFoundError{Resource: "deployment", ID: deploymentID}
	}

	var out []string
	for _, line := range p.logs[deploymentID] {
		if !start.IsZero() && line.at.Before(start) {
			continue
		}
		if !end.IsZero() && line.at.After(end) {
			continue
		}
		out = append(out, fmt.Sprintf("[%s] %s", line.at.Format(time.RFC3339), line.msg))
	}
	return out, nil
}

// GetMetrics implements cloud.Provider. It returns static sample data,
// matching the reference provider's fixed mock series.
func (p *Provider) GetMetrics(ctx context.Context, deploymentID, resourceID string, metricNames []string, start, end time.Time) (map[string][]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkConnection(); err != nil {
		return nil, err
	}
	if _, ok := p.deployments[deploymentID]; !ok {
		return nil, &engineerrors.NotFoundError{Resource: "deployment", ID: deploymentID}
	}

	return map[string][]float64{
		"cpu_usage":    {30, 40, 35, 45},
		"memory_usage": {60, 65, 70, 68},
		"disk_usage":   {45, 46, 47, 48},
	}, nil
}

// ValidateTemplate implements cloud.Provider.
func (p *Provider) ValidateTemplate(ctx context.Context, template map[string]any) ([]string, error) {
	var errs []string

	if template == nil {
		return []string{"template must be a map"}, nil
	}

	rawNodes, ok := template["nodes"]
	if !ok {
		errs = append(errs, "template must contain a nodes field")
		return errs, nil
	}

	nodes, ok := rawNodes.([]any)
	if !ok {
		errs = append(errs, "nodes must be a list")
		return errs, nil
	}

	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			errs = append(errs, "node must be a map")
			continue
		}
		if _, ok := node["name"]; !ok {
			errs = append(errs, "node must contain a name field")
		}
		if _, ok := node["type"]; !ok {
			errs = append(errs, "node must contain a type field")
		}
	}

	return errs, nil
}

// GetResourceTypes implements cloud.Provider.
func (p *Provider) GetResourceTypes(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConnection(); err != nil {
		return nil, err
	}
	return resourceTypes, nil
}

// GetOperationTypes implements cloud.Provider.
func (p *Provider) GetOperationTypes(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkConnection(); err != nil {
		return nil, err
	}
	return operationTypes, nil
}

// GetProviderInfo implements cloud.Provider.
func (p *Provider) GetProviderInfo(ctx context.Context) (*cloud.ProviderInfo, error) {
	return &cloud.ProviderInfo{
		Type:        "mock",
		Name:        "Mock Cloud Provider",
		Description: "In-memory cloud provider for local development and testing",
		Version:     "1.0.0",
	}, nil
}

// Wait blocks until all background deployment simulations started by
// this Provider have finished. Intended for use in tests.
func (p *Provider) Wait() {
	p.wg.Wait()
}

var _ cloud.Provider = (*Provider)(nil)
