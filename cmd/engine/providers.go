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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cloudweave/engine/internal/cliui"
	"github.com/cloudweave/engine/internal/config"
)

// knownProviderTypes are the cloud.Provider implementations engined
// registers at startup; see cmd/engined's provider-type registration.
var knownProviderTypes = []string{"mock", "kubernetes"}

func newProvidersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Inspect and configure cloud providers",
	}
	cmd.AddCommand(newProvidersListCommand())
	cmd.AddCommand(newProvidersAddCommand())
	return cmd
}

func newProvidersListCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured provider instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if len(cfg.Providers) == 0 {
				fmt.Println(cliui.RenderLabel("no providers configured"))
				return nil
			}
			for name, pc := range cfg.Providers {
				marker := ""
				if pc.Default {
					marker = " (default)"
				}
				fmt.Printf("%-16s type=%-12s enabled=%v%s\n", name, pc.Type, pc.Enabled, marker)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	return cmd
}

// newProvidersAddCommand interactively builds a ProviderConfig and
// appends it to the on-disk config file engined reads at startup.
func newProvidersAddCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Interactively add a provider to the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				configPath = filepath.Join(home, ".config", "engine", "config.yaml")
			}

			cfg := config.Default()
			if _, statErr := os.Stat(configPath); statErr == nil {
				loaded, loadErr := config.Load(configPath)
				if loadErr != nil {
					return loadErr
				}
				cfg = loaded
			}

			var providerType, name string
			var enableByDefault bool

			if err := survey.AskOne(&survey.Select{
				Message: "Provider type",
				Options: knownProviderTypes,
			}, &providerType); err != nil {
				return err
			}
			if err := survey.AskOne(&survey.Input{
				Message: "Instance name",
				Default: providerType,
			}, &name); err != nil {
				return err
			}
			if err := survey.AskOne(&survey.Confirm{
				Message: "Make this the default provider?",
				Default: len(cfg.Providers) == 0,
			}, &enableByDefault); err != nil {
				return err
			}

			if cfg.Providers == nil {
				cfg.Providers = config.ProvidersMap{}
			}
			cfg.Providers[name] = config.ProviderConfig{
				Type:          providerType,
				Name:          name,
				Enabled:       true,
				Default:       enableByDefault,
				Timeout:       5 * time.Minute,
				RetryCount:    3,
				RetryInterval: 5 * time.Second,
			}

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("resulting config is invalid: %w", err)
			}

			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return err
			}

			fmt.Printf("%s provider %q written to %s\n", cliui.RenderLabel("saved"), name, configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/engine/config.yaml)")
	return cmd
}
