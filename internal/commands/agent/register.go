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

// Package agent implements the register and unregister commands.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/devlease/devlease/internal/commands/shared"
	"github.com/devlease/devlease/internal/lock"
)

// countResult is the JSON output of register and unregister.
type countResult struct {
	AgentID string `json:"agent_id"`
	Count   int    `json:"count"`
}

// NewRegisterCommand creates the register command
func NewRegisterCommand() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register as a user of the shared server",
		Long: `Register adds this agent to the set of active server users and prints
the new registration count. Registering the same agent twice is a no-op,
so crashed-and-retried wrapper scripts stay correct.

Dead registrations are swept before counting, so the printed count only
reflects live processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, agentID)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent identifier (default: this process id)")
	return cmd
}

// NewUnregisterCommand creates the unregister command
func NewUnregisterCommand() *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "unregister",
		Short: "Withdraw a registration for the shared server",
		Long: `Unregister removes this agent from the set of active server users and
prints the remaining registration count. A zero means the server has no
remaining users and may be shut down. Unregistering an agent that is not
registered is a no-op.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnregister(cmd, agentID)
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent identifier (default: this process id)")
	return cmd
}

func runRegister(cmd *cobra.Command, agentID string) error {
	rt, err := shared.NewRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	agentID = resolveAgentID(agentID)

	count, err := rt.Registry.Register(agentID)
	if err != nil {
		if errors.Is(err, lock.ErrAcquireTimeout) {
			return shared.NewContentionError("failed to register", err)
		}
		return fmt.Errorf("failed to register: %w", err)
	}
	rt.Recorder.RecordRegister(agentID, os.Getpid(), count)

	return printCount(cmd, agentID, count, fmt.Sprintf("registered %s (%d active)", agentID, count))
}

func runUnregister(cmd *cobra.Command, agentID string) error {
	rt, err := shared.NewRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	agentID = resolveAgentID(agentID)

	remaining, err := rt.Registry.Unregister(agentID)
	if err != nil {
		if errors.Is(err, lock.ErrAcquireTimeout) {
			return shared.NewContentionError("failed to unregister", err)
		}
		return fmt.Errorf("failed to unregister: %w", err)
	}
	rt.Recorder.RecordUnregister(agentID, os.Getpid(), remaining)

	return printCount(cmd, agentID, remaining, fmt.Sprintf("unregistered %s (%d remaining)", agentID, remaining))
}

// printCount writes the machine-readable count to stdout and, unless
// quieted, a human summary to stderr so scripts capturing stdout see only
// the number.
func printCount(cmd *cobra.Command, agentID string, count int, summary string) error {
	if shared.GetJSON() {
		data, err := json.Marshal(countResult{AgentID: agentID, Count: count})
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(count)
	if !shared.GetQuiet() {
		fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK(summary))
	}
	return nil
}

func resolveAgentID(agentID string) string {
	if agentID == "" {
		return strconv.Itoa(os.Getpid())
	}
	return agentID
}
