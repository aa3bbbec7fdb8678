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

package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudweave/engine/internal/config"
	"github.com/cloudweave/engine/pkg/blueprint"
)

// submitter is the subset of *scheduler.Scheduler a cron Scheduler
// depends on. Defined locally rather than imported, mirroring
// pkg/scheduler's own unexported runner interface, so this package
// doesn't need to import pkg/scheduler just to name its type.
type submitter interface {
	Submit(ctx context.Context, workflowID string, def *blueprint.Definition, deploymentID string, inputs map[string]any) error
}

// schedule is a config.CronSchedule plus the computed state the
// scheduler loop maintains between ticks.
type schedule struct {
	config.CronSchedule

	cronExpr   *CronExpr
	nextRun    time.Time
	lastRun    *time.Time
	runCount   int64
	errorCount int64
}

// Scheduler re-submits a blueprint on each of its configured
// schedules' cron cadence, for recurring runs (e.g. infra
// drift-correction) that don't wait on an external submit call.
type Scheduler struct {
	mu            sync.RWMutex
	schedules     map[string]*schedule
	submitter     submitter
	blueprintsDir string
	stopCh        chan struct{}
	doneCh        chan struct{}
	running       bool
	logger        *slog.Logger
}

// New builds a Scheduler from cfg, parsing each schedule's cron
// expression up front so a malformed schedule fails at startup rather
// than silently never firing.
func New(cfg config.CronConfig, sub submitter, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		schedules:     make(map[string]*schedule),
		submitter:     sub,
		blueprintsDir: cfg.BlueprintsDir,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		logger:        logger.With("component", "cron"),
	}

	for _, sc := range cfg.Schedules {
		if err := s.AddSchedule(sc); err != nil {
			return nil, fmt.Errorf("invalid schedule %s: %w", sc.Name, err)
		}
	}
	return s, nil
}

// AddSchedule parses sc's cron expression and adds it, replacing any
// existing schedule with the same name.
func (s *Scheduler) AddSchedule(sc config.CronSchedule) error {
	expr, err := ParseCron(sc.Cron)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	loc := time.UTC
	if sc.Timezone != "" {
		loc, err = time.LoadLocation(sc.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.Name] = &schedule{
		CronSchedule: sc,
		cronExpr:     expr,
		nextRun:      expr.Next(time.Now().In(loc)),
	}
	return nil
}

// RemoveSchedule removes a schedule by name.
func (s *Scheduler) RemoveSchedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, name)
}

// GetSchedule returns a schedule's current config by name.
func (s *Scheduler) GetSchedule(name string) (config.CronSchedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[name]
	if !ok {
		return config.CronSchedule{}, false
	}
	return sc.CronSchedule, true
}

// SetEnabled enables or disables a schedule.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[name]
	if !ok {
		return fmt.Errorf("schedule not found: %s", name)
	}
	sc.Enabled = enabled
	return nil
}

// Start starts the scheduler loop. Idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop stops the scheduler loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick checks for due schedules and triggers them.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sc := range s.schedules {
		if !sc.Enabled {
			continue
		}
		if now.Before(sc.nextRun) {
			continue
		}

		go s.triggerSchedule(ctx, sc)

		loc := time.UTC
		if sc.Timezone != "" {
			if l, err := time.LoadLocation(sc.Timezone); err == nil {
				loc = l
			}
		}
		sc.nextRun = sc.cronExpr.Next(now.In(loc))
		runAt := now
		sc.lastRun = &runAt
		sc.runCount++
	}
}

// triggerSchedule submits sc's blueprint as a new workflow run.
func (s *Scheduler) triggerSchedule(ctx context.Context, sc *schedule) {
	log := s.logger.With("schedule", sc.Name, "blueprint", sc.Blueprint)

	path, err := s.findBlueprint(sc.Blueprint)
	if err != nil {
		log.Error("blueprint not found", "error", err)
		s.recordError(sc.Name)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("failed to read blueprint", "error", err)
		s.recordError(sc.Name)
		return
	}

	def, err := blueprint.ParseYAML(data)
	if err != nil {
		log.Error("failed to parse blueprint", "error", err)
		s.recordError(sc.Name)
		return
	}

	inputs := make(map[string]any, len(sc.Inputs)+2)
	for k, v := range sc.Inputs {
		inputs[k] = v
	}
	inputs["_scheduled"] = true
	inputs["_schedule_name"] = sc.Name

	workflowID := uuid.New().String()[:8]
	if err := s.submitter.Submit(ctx, workflowID, def, "", inputs); err != nil {
		log.Error("failed to submit scheduled workflow", "error", err)
		s.recordError(sc.Name)
		return
	}

	log.Info("submitted scheduled workflow", "workflow_id", workflowID)
}

func (s *Scheduler) recordError(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.schedules[name]; ok {
		sc.errorCount++
	}
}

// findBlueprint resolves name to a blueprint file under blueprintsDir
// or the current directory, trying .yaml/.yml/no extension in turn.
func (s *Scheduler) findBlueprint(name string) (string, error) {
	extensions := []string{".yaml", ".yml", ""}
	baseDirs := []string{s.blueprintsDir, "."}

	for _, baseDir := range baseDirs {
		if baseDir == "" {
			continue
		}
		for _, ext := range extensions {
			path := filepath.Join(baseDir, name+ext)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("blueprint not found: %s", name)
}

// ScheduleStatus reports one schedule's run history.
type ScheduleStatus struct {
	Name       string     `json:"name"`
	Cron       string     `json:"cron"`
	Blueprint  string     `json:"blueprint"`
	Enabled    bool       `json:"enabled"`
	NextRun    time.Time  `json:"next_run"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	RunCount   int64      `json:"run_count"`
	ErrorCount int64      `json:"error_count"`
}

// GetStatus returns the status of all schedules.
func (s *Scheduler) GetStatus() []ScheduleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ScheduleStatus, 0, len(s.schedules))
	for _, sc := range s.schedules {
		result = append(result, ScheduleStatus{
			Name:       sc.Name,
			Cron:       sc.Cron,
			Blueprint:  sc.Blueprint,
			Enabled:    sc.Enabled,
			NextRun:    sc.nextRun,
			LastRun:    sc.lastRun,
			RunCount:   sc.runCount,
			ErrorCount: sc.errorCount,
		})
	}
	return result
}
