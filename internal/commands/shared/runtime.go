// Copyright 2026 Devlease Authors
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

package shared

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/devlease/devlease/internal/audit"
	"github.com/devlease/devlease/internal/config"
	"github.com/devlease/devlease/internal/coordinator"
	"github.com/devlease/devlease/internal/history"
	"github.com/devlease/devlease/internal/lock"
	"github.com/devlease/devlease/internal/log"
	"github.com/devlease/devlease/internal/registry"
	"github.com/devlease/devlease/internal/state"
	"github.com/devlease/devlease/internal/store"
)

const (
	auditLogFile  = "events.log"
	historyDBFile = "history.db"
)

// Runtime wires the coordination components for one CLI invocation.
type Runtime struct {
	Settings    *config.Settings
	StateDir    string
	Store       store.Store
	Lock        *lock.Lock
	Registry    *registry.Registry
	State       *state.State
	Coordinator *coordinator.Coordinator
	Logger      *slog.Logger
	Recorder    *Recorder

	hist *history.DB
}

// NewRuntime builds a runtime from the global flags and the settings file.
func NewRuntime() (*Runtime, error) {
	settings, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewEnvironmentError("failed to load settings", err)
	}

	stateDir, err := settings.ResolveStateDir(GetStateDir())
	if err != nil {
		return nil, NewEnvironmentError("failed to resolve state directory", err)
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, NewEnvironmentError(fmt.Sprintf("state directory %s unusable", stateDir), err)
	}

	logger := log.New(log.FromEnv())

	st := store.NewDir(stateDir)
	lk := lock.New(st, lock.DefaultName, logger).
		WithMaxAge(settings.Lock.MaxAge.Std())
	reg := registry.New(st, lk, logger).
		WithLockPolicy(settings.LockPolicy())
	srv := state.New(st, logger)
	co := coordinator.New(st, reg, logger)

	rt := &Runtime{
		Settings:    settings,
		StateDir:    stateDir,
		Store:       st,
		Lock:        lk,
		Registry:    reg,
		State:       srv,
		Coordinator: co,
		Logger:      logger,
	}

	var auditLog *audit.Logger
	if settings.AuditEnabled() {
		auditLog = audit.NewLogger(filepath.Join(stateDir, auditLogFile))
	}
	if settings.HistoryEnabled() {
		hist, err := history.Open(filepath.Join(stateDir, historyDBFile))
		if err != nil {
			// History is bookkeeping; coordination still works without it.
			fmt.Fprintf(os.Stderr, "Warning: failed to open history database: %v\n", err)
		} else {
			rt.hist = hist
		}
	}
	rt.Recorder = NewRecorder(auditLog, rt.hist)

	return rt, nil
}

// History returns the history database, or nil when disabled or unopenable.
func (rt *Runtime) History() *history.DB {
	return rt.hist
}

// Close releases runtime resources.
func (rt *Runtime) Close() {
	if rt.hist != nil {
		if err := rt.hist.Close(); err != nil {
			rt.Logger.Warn("failed to close history database", "error", err)
		}
	}
}
