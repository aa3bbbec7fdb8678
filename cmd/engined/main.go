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
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudweave/engine/internal/config"
	"github.com/cloudweave/engine/internal/daemonapi"
	"github.com/cloudweave/engine/internal/log"
	"github.com/cloudweave/engine/pkg/cloud"
	"github.com/cloudweave/engine/pkg/cloud/k8sprovider"
	"github.com/cloudweave/engine/pkg/cloud/mockprovider"
	"github.com/cloudweave/engine/pkg/cloud/registry"
	"github.com/cloudweave/engine/pkg/engine"
	"github.com/cloudweave/engine/pkg/executor"
	"github.com/cloudweave/engine/pkg/metrics"
	"github.com/cloudweave/engine/pkg/scheduler"
	"github.com/cloudweave/engine/pkg/scheduler/cron"
	"github.com/cloudweave/engine/pkg/state"
	"github.com/cloudweave/engine/pkg/store"
	"github.com/cloudweave/engine/pkg/store/memstore"
	"github.com/cloudweave/engine/pkg/store/sqlitestore"
	"github.com/cloudweave/engine/pkg/tracing"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file")
		backend     = flag.String("backend", "", "Storage backend override (memory, sqlite)")
		dsn         = flag.String("dsn", "", "SQLite DSN override (used when backend=sqlite)")
		listenAddr  = flag.String("listen", ":8090", "HTTP listen address")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("engined %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Store.Driver = *backend
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}

	if err := run(cfg, *listenAddr, logger); err != nil {
		logger.Error("engined exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, listenAddr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := newStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	manager := state.New(st)

	providerRegistry := registry.New()
	if err := providerRegistry.RegisterProviderType("mock", func(pc config.ProviderConfig) (cloud.Provider, error) {
		return mockprovider.New(mockprovider.Default()), nil
	}); err != nil {
		return fmt.Errorf("registering mock provider type: %w", err)
	}
	if err := providerRegistry.RegisterProviderType("kubernetes", func(pc config.ProviderConfig) (cloud.Provider, error) {
		return k8sprovider.New(k8sprovider.Config{
			Context:   stringProp(pc.Properties, "context"),
			Namespace: stringProp(pc.Properties, "namespace"),
		}), nil
	}); err != nil {
		return fmt.Errorf("registering kubernetes provider type: %w", err)
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = config.ProvidersMap{
			"mock": {Type: "mock", Name: "mock", Enabled: true, Default: true, Timeout: 5 * time.Minute, RetryCount: 3, RetryInterval: 5 * time.Second},
		}
	}
	for _, pc := range cfg.Providers {
		if err := providerRegistry.RegisterConfig(pc); err != nil {
			return fmt.Errorf("registering provider config %q: %w", pc.Name, err)
		}
	}

	defaultProvider, err := providerRegistry.GetProvider("")
	if err != nil {
		return fmt.Errorf("resolving default provider: %w", err)
	}

	execRegistry := executor.NewRegistry(defaultProvider, nil)
	eng := engine.New(manager, execRegistry, engine.Default(), logger)

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("creating metrics collector: %w", err)
	}
	eng.SetMetrics(collector)

	if tracingCfg := tracing.Default(); tracingCfg.Enabled {
		tracingProvider, err := tracing.NewProvider(ctx, tracingCfg)
		if err != nil {
			return fmt.Errorf("creating tracing provider: %w", err)
		}
		defer tracingProvider.Shutdown(context.Background())
		eng.SetTracer(tracingProvider.Tracer())
	}

	sched := scheduler.New(manager, eng, cfg.Scheduler, logger)
	collector.SetQueueSource(sched)
	sched.Start(ctx)
	defer sched.Stop()

	if len(cfg.Cron.Schedules) > 0 {
		cronSched, err := cron.New(cfg.Cron, sched, logger)
		if err != nil {
			return fmt.Errorf("building cron scheduler: %w", err)
		}
		cronSched.Start(ctx)
		defer cronSched.Stop()
	}

	router := daemonapi.NewRouter(sched, manager, reg)
	server := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("engined listening", slog.String("addr", listenAddr))
		serveErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlitestore.New(sqlitestore.Config{Path: cfg.DSN, WAL: true})
	default:
		return memstore.New(), nil
	}
}

func stringProp(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	s, _ := props[key].(string)
	return s
}
