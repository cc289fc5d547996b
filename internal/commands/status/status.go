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

// Package status implements the status command.
package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devlease/devlease/internal/commands/shared"
	"github.com/devlease/devlease/internal/state"
)

// agentInfo is one registration in the JSON status output.
type agentInfo struct {
	AgentID      string `json:"agent_id"`
	PID          int    `json:"pid"`
	User         string `json:"user,omitempty"`
	RegisteredAt string `json:"registered_at"`
}

// statusResult is the JSON output of the status command.
type statusResult struct {
	Server        string      `json:"server"`
	OwnerPID      int         `json:"owner_pid,omitempty"`
	Registrations int         `json:"registrations"`
	Agents        []agentInfo `json:"agents,omitempty"`
	StopRequested bool        `json:"stop_requested"`
	StopReason    string      `json:"stop_reason,omitempty"`
	LockHolderPID int         `json:"lock_holder_pid,omitempty"`
	StateDir      string      `json:"state_dir"`
}

// NewCommand creates the status command
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the shared server's coordination state",
		Long: `Status reports the recorded server lifecycle phase, the live
registrations holding it up, any pending stop request, and who currently
holds the coordination lock. The report is read-only except that checking
the lock removes it if it has gone stale.`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	rt, err := shared.NewRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	result := statusResult{
		Server:   string(rt.State.Status()),
		OwnerPID: rt.State.OwnerPID(),
		StateDir: rt.StateDir,
	}

	agents, err := rt.Registry.List()
	if err != nil {
		return fmt.Errorf("failed to read registrations: %w", err)
	}
	result.Registrations = len(agents)
	for _, reg := range agents {
		result.Agents = append(result.Agents, agentInfo{
			AgentID:      reg.AgentID,
			PID:          reg.PID,
			User:         reg.User,
			RegisteredAt: reg.RegisteredAt.Format(time.RFC3339),
		})
	}

	if req, ok := rt.Coordinator.Request(); ok {
		result.StopRequested = true
		result.StopReason = req.Reason
	}

	if rt.Lock.IsLocked() {
		if owner, ok := rt.Lock.Owner(); ok {
			result.LockHolderPID = owner.PID
		}
	}

	if shared.GetJSON() {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	renderStatus(cmd, result)
	return nil
}

func renderStatus(cmd *cobra.Command, result statusResult) {
	running := result.Server == string(state.StatusRunning)
	cmd.Printf("%s %s", shared.RenderHeader("Server:"), shared.RenderStatus(running, result.Server))
	if result.OwnerPID > 0 {
		cmd.Printf(" %s", shared.RenderMuted(fmt.Sprintf("(pid %d)", result.OwnerPID)))
	}
	cmd.Println()

	cmd.Printf("%s %d\n", shared.RenderHeader("Registrations:"), result.Registrations)
	for _, agent := range result.Agents {
		cmd.Printf("  %s %s %s\n",
			shared.RenderLabel("-"),
			agent.AgentID,
			shared.RenderMuted(fmt.Sprintf("(pid %d, %s)", agent.PID, agent.User)))
	}

	if result.StopRequested {
		reason := result.StopReason
		if reason == "" {
			reason = "no reason given"
		}
		cmd.Println(shared.RenderWarn("stop requested: " + reason))
	}

	if result.LockHolderPID > 0 {
		cmd.Println(shared.RenderMuted(fmt.Sprintf("coordination lock held by pid %d", result.LockHolderPID)))
	} else {
		cmd.Println(shared.RenderMuted("coordination lock free"))
	}

	if !shared.GetQuiet() {
		cmd.Println(shared.RenderLabel("state dir: " + result.StateDir))
	}
}
