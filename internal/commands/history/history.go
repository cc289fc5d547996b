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

// Package history implements the history command group over the event
// database.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/devlease/devlease/internal/commands/shared"
	histdb "github.com/devlease/devlease/internal/history"
)

// NewCommand creates the history command group
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded coordination events",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newPruneCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var limit int
	var event string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent coordination events",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			db := rt.History()
			if db == nil {
				return &shared.ExitError{Code: shared.ExitFailure, Message: "history recording is disabled"}
			}

			var entries []histdb.Entry
			if event != "" {
				entries, err = db.ByEvent(cmd.Context(), event, limit)
			} else {
				entries, err = db.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}

			if shared.GetJSON() {
				return printJSON(cmd, entries)
			}

			if len(entries) == 0 {
				cmd.Println("no recorded events")
				return nil
			}
			for _, entry := range entries {
				renderEntry(cmd, entry)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events to show")
	cmd.Flags().StringVar(&event, "event", "", "Only show events of this type (register, unregister, stop_request, ...)")
	return cmd
}

func newPruneCommand() *cobra.Command {
	var keep time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete events older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			db := rt.History()
			if db == nil {
				return &shared.ExitError{Code: shared.ExitFailure, Message: "history recording is disabled"}
			}

			pruned, err := db.Prune(cmd.Context(), time.Now().Add(-keep))
			if err != nil {
				return fmt.Errorf("failed to prune history: %w", err)
			}

			if !shared.GetQuiet() {
				fmt.Fprintln(cmd.ErrOrStderr(), shared.RenderOK(fmt.Sprintf("pruned %d events", pruned)))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&keep, "keep", 30*24*time.Hour, "Retention window for events")
	return cmd
}

type entryJSON struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	CorrelationID string `json:"correlation_id,omitempty"`
	AgentID       string `json:"agent_id,omitempty"`
	PID           int    `json:"pid,omitempty"`
	Count         int    `json:"count,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

func printJSON(cmd *cobra.Command, entries []histdb.Entry) error {
	out := make([]entryJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryJSON{
			Timestamp:     entry.Timestamp.Format(time.RFC3339),
			Event:         entry.Event,
			CorrelationID: entry.CorrelationID,
			AgentID:       entry.AgentID,
			PID:           entry.PID,
			Count:         entry.Count,
			Reason:        entry.Reason,
			Success:       entry.Success,
			Error:         entry.Error,
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func renderEntry(cmd *cobra.Command, entry histdb.Entry) {
	ts := shared.RenderMuted(entry.Timestamp.Format("2006-01-02 15:04:05"))

	detail := ""
	switch {
	case entry.AgentID != "":
		detail = fmt.Sprintf("%s (pid %d, %d active)", entry.AgentID, entry.PID, entry.Count)
	case entry.Reason != "":
		detail = entry.Reason
	case entry.Error != "":
		detail = entry.Error
	}

	marker := shared.RenderStatus(entry.Success, entry.Event)
	if detail != "" {
		cmd.Printf("%s %s %s\n", ts, marker, detail)
	} else {
		cmd.Printf("%s %s\n", ts, marker)
	}
}
