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

// Package cli assembles the devlease root command.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/devlease/devlease/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for devlease
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devlease",
		Short: "devlease - shared dev server coordination",
		Long: `Devlease coordinates multiple processes sharing one long-lived local
dev server. Agents register while they need the server and unregister when
done; the server owner watches the registration count and a cooperative
stop request to decide when it is safe to shut down.

Typical use from a wrapper script:

  devlease register --agent "$SESSION_ID"
  trap 'devlease unregister --agent "$SESSION_ID"' EXIT`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	quiet, json, config, stateDir := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to settings file (default: ~/.config/devlease/settings.yaml)")
	cmd.PersistentFlags().StringVar(stateDir, "state-dir", "", "Coordination state directory (default: ~/.local/state/devlease)")

	// Accept underscore spellings (--state_dir) from older wrapper scripts.
	cmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
