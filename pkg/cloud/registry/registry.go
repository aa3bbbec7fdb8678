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

// Package registry provides a dependency-injected registry of cloud
// providers, constructed and owned by application startup rather than
// held as package-level state.
package registry

import (
	"fmt"
	"sync"

	"github.com/cloudweave/engine/internal/config"
	"github.com/cloudweave/engine/pkg/cloud"
	engineerrors "github.com/cloudweave/engine/pkg/errors"
)

// Factory constructs a cloud.Provider instance from its configuration.
type Factory func(cfg config.ProviderConfig) (cloud.Provider, error)

// Registry holds registered provider types, their configurations, and
// lazily-constructed instances. A Registry is owned by its caller
// (typically assembled once at application startup) rather than
// reached via global state, so multiple independent registries can
// coexist in the same process — useful for tests.
type Registry struct {
	mu sync.Mutex

	factories       map[string]Factory
	configs         map[string]config.ProviderConfig
	instances       map[string]cloud.Provider
	defaultProvider string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		configs:   make(map[string]config.ProviderConfig),
		instances: make(map[string]cloud.Provider),
	}
}

// RegisterProviderType registers a Factory for a provider type tag
// (e.g. "mock", "kubernetes"). Registering the same tag twice is an
// error.
func (r *Registry) RegisterProviderType(providerType string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[providerType]; exists {
		return &engineerrors.ConfigError{Key: "provider_type", Reason: fmt.Sprintf("cloud provider type %q is already registered", providerType)}
	}
	r.factories[providerType] = factory
	return nil
}

// RegisterConfig registers a named provider configuration. The config
// must validate and its Type must already have a registered Factory.
// At most one registered config may be the default; registering a new
// default clears the previous one's Default flag.
func (r *Registry) RegisterConfig(cfg config.ProviderConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[cfg.Name]; exists {
		return &engineerrors.ConfigError{Key: "provider_config", Reason: fmt.Sprintf("cloud provider %q is already configured", cfg.Name)}
	}
	if _, exists := r.factories[cfg.Type]; !exists {
		return &engineerrors.ConfigError{Key: "provider_type", Reason: fmt.Sprintf("unknown cloud provider type %q", cfg.Type)}
	}

	r.configs[cfg.Name] = cfg
	if cfg.Default {
		if r.defaultProvider != "" && r.defaultProvider != cfg.Name {
			old := r.configs[r.defaultProvider]
			old.Default = false
			r.configs[r.defaultProvider] = old
		}
		r.defaultProvider = cfg.Name
	}
	return nil
}

// GetProvider returns the provider instance registered under name,
// constructing it on first use. If name is empty, the registered
// default provider is returned.
func (r *Registry) GetProvider(name string) (cloud.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		if r.defaultProvider == "" {
			return nil, &engineerrors.ConfigError{Key: "default_provider", Reason: "no default cloud provider configured"}
		}
		name = r.defaultProvider
	}

	cfg, exists := r.configs[name]
	if !exists {
		return nil, &engineerrors.NotFoundError{Resource: "cloud provider config", ID: name}
	}

	if instance, exists := r.instances[name]; exists {
		return instance, nil
	}

	if !cfg.Enabled {
		return nil, &engineerrors.ConfigError{Key: "provider_enabled", Reason: fmt.Sprintf("cloud provider %q is disabled", name)}
	}

	factory := r.factories[cfg.Type]
	instance, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	r.instances[name] = instance
	return instance, nil
}

// ListConfigs returns all registered provider configurations.
func (r *Registry) ListConfigs() []config.ProviderConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]config.ProviderConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		out = append(out, cfg)
	}
	return out
}

// GetConfig returns the registered configuration for name.
func (r *Registry) GetConfig(name string) (config.ProviderConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, exists := r.configs[name]
	if !exists {
		return config.ProviderConfig{}, &engineerrors.NotFoundError{Resource: "cloud provider config", ID: name}
	}
	return cfg, nil
}

// RemoveConfig removes a registered configuration and its constructed
// instance, if any.
func (r *Registry) RemoveConfig(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, exists := r.configs[name]
	if !exists {
		return &engineerrors.NotFoundError{Resource: "cloud provider config", ID: name}
	}
	if cfg.Default {
		r.defaultProvider = ""
	}
	delete(r.configs, name)
	delete(r.instances, name)
	return nil
}
