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

// Package stop implements the stop command group: filing, inspecting, and
// clearing cooperative stop requests, and waiting for registrations to
// drain.
package stop

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/devlease/devlease/internal/commands/shared"
	"github.com/devlease/devlease/internal/coordinator"
)

// NewCommand creates the stop command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Manage cooperative stop requests for the shared server",
		Long: `Stop requests are advisory: filing one never kills anything. The server
owner polls (or watches) for a pending request, stops accepting new work,
waits for registrations to drain, and only then shuts down.`,
	}

	cmd.AddCommand(newNotifyCommand())
	cmd.AddCommand(newRequestedCommand())
	cmd.AddCommand(newClearCommand())
	cmd.AddCommand(newWaitCommand())
	return cmd
}

func newNotifyCommand() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "File a stop request for the shared server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Coordinator.Notify(reason); err != nil {
				return fmt.Errorf("failed to file stop request: %w", err)
			}
			rt.Recorder.RecordStopRequest(reason, os.Getpid())

			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK("stop requested"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the server should stop")
	return cmd
}

func newRequestedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requested",
		Short: "Check whether a stop request is pending",
		Long: `Requested exits 0 and prints the request when a stop is pending, and
exits 1 when none is. Server owners poll this from their shutdown loop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			req, ok := rt.Coordinator.Request()
			if !ok {
				return &shared.ExitError{Code: shared.ExitFailure, Message: "no stop request pending"}
			}

			if shared.GetJSON() {
				data, err := json.Marshal(map[string]string{
					"requested_at": req.RequestedAt.Format(time.RFC3339),
					"reason":       req.Reason,
				})
				if err != nil {
					return fmt.Errorf("failed to marshal stop request: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			reason := req.Reason
			if reason == "" {
				reason = "no reason given"
			}
			cmd.Printf("stop requested at %s: %s\n", req.RequestedAt.Format(time.RFC3339), reason)
			return nil
		},
	}
}

func newClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Withdraw a pending stop request",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Coordinator.Clear(); err != nil {
				return fmt.Errorf("failed to clear stop request: %w", err)
			}
			rt.Recorder.RecordStopClear(os.Getpid())

			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK("stop request cleared"))
			}
			return nil
		},
	}
}

func newWaitCommand() *cobra.Command {
	var timeout, interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait for all registrations to drain",
		Long: `Wait blocks until no live registrations remain, sweeping dead ones on
each check. A server owner runs this between receiving a stop request and
actually shutting down. Exits with a dedicated code when registrations
remain at the deadline, so scripts can distinguish "safe to stop" from
"still in use".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			policy := rt.Settings.DrainPolicy()
			if cmd.Flags().Changed("timeout") {
				policy.Timeout = timeout
			}
			if cmd.Flags().Changed("interval") {
				policy.Interval = interval
			}

			rt.Recorder.RecordDrainStart(rt.Registry.Count())

			start := time.Now()
			if err := rt.Coordinator.WaitForDrain(policy); err != nil {
				if errors.Is(err, coordinator.ErrDrainTimeout) {
					check, cerr := rt.Registry.CanDrain()
					if cerr == nil {
						rt.Recorder.RecordDrainTimeout(len(check.Remaining), err)
					}
					return shared.NewDrainTimeoutError("drain wait timed out", err)
				}
				return fmt.Errorf("drain wait failed: %w", err)
			}
			rt.Recorder.RecordDrainDone(time.Since(start))

			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK("all registrations drained"))
			}
			return nil
		},
	}

	def := coordinator.DefaultDrainPolicy()
	cmd.Flags().DurationVar(&timeout, "timeout", def.Timeout, "How long to wait for registrations to drain")
	cmd.Flags().DurationVar(&interval, "interval", def.Interval, "Delay between drain checks")
	return cmd
}

