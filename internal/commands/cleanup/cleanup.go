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

// Package cleanup implements the cleanup command.
package cleanup

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/devlease/devlease/internal/commands/shared"
	"github.com/devlease/devlease/internal/coordinator"
	"github.com/devlease/devlease/internal/lock"
	"github.com/devlease/devlease/internal/registry"
	"github.com/devlease/devlease/internal/state"
)

// cleanupResult is the JSON output of the cleanup command.
type cleanupResult struct {
	Remaining  int  `json:"remaining"`
	LockHeld   bool `json:"lock_held"`
	StopActive bool `json:"stop_active"`
}

// NewCommand creates the cleanup command
func NewCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Sweep dead registrations and stale locks",
		Long: `Cleanup removes registrations whose processes are gone and any stale
coordination lock, then prints the surviving registration count. Every
mutating command already sweeps as a side effect; cleanup exists for cron
jobs and for recovering by hand after a machine crash.

With --all, every coordination record is removed unconditionally, live
holders included. This is an operator escape hatch, not part of any
normal flow.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove all coordination records unconditionally")
	return cmd
}

func runCleanup(cmd *cobra.Command, all bool) error {
	rt, err := shared.NewRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	if all {
		return runCleanupAll(cmd, rt)
	}

	before := rt.Registry.Count()
	remaining, err := rt.Registry.SweepDead()
	if err != nil {
		return fmt.Errorf("failed to sweep registrations: %w", err)
	}
	if removed := before - remaining; removed > 0 {
		rt.Recorder.RecordSweep(removed, remaining)
	}

	if rt.Lock.StaleSweep() {
		rt.Recorder.RecordStaleSweep()
	}
	lockHeld := rt.Lock.IsLocked()

	rt.Recorder.RecordCleanup(remaining)

	result := cleanupResult{
		Remaining:  remaining,
		LockHeld:   lockHeld,
		StopActive: rt.Coordinator.IsStopRequested(),
	}

	if shared.GetJSON() {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(remaining)
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK(fmt.Sprintf("cleanup complete (%d live registrations)", remaining)))
	}
	return nil
}

// runCleanupAll removes every coordination record regardless of liveness.
func runCleanupAll(cmd *cobra.Command, rt *shared.Runtime) error {
	records := []string{
		lock.DefaultName,
		registry.ListRecord,
		registry.CountRecord,
		state.Record,
		coordinator.DefaultStopRecord,
	}
	for _, record := range records {
		if err := rt.Store.RemoveAll(record); err != nil {
			return fmt.Errorf("failed to remove %s: %w", record, err)
		}
	}

	rt.Recorder.RecordCleanup(0)

	if shared.GetJSON() {
		data, err := json.Marshal(cleanupResult{})
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(0)
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderWarn("all coordination records removed"))
	}
	return nil
}
