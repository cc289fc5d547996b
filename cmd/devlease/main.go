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

package main

import (
	"github.com/devlease/devlease/internal/cli"
	"github.com/devlease/devlease/internal/commands/agent"
	"github.com/devlease/devlease/internal/commands/cleanup"
	historycmd "github.com/devlease/devlease/internal/commands/history"
	"github.com/devlease/devlease/internal/commands/status"
	"github.com/devlease/devlease/internal/commands/stop"
	versioncmd "github.com/devlease/devlease/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	// Create root command and add subcommands
	rootCmd := cli.NewRootCommand()

	// Registration commands
	rootCmd.AddCommand(agent.NewRegisterCommand())
	rootCmd.AddCommand(agent.NewUnregisterCommand())

	// Lifecycle commands
	rootCmd.AddCommand(status.NewCommand())
	rootCmd.AddCommand(stop.NewCommand())
	rootCmd.AddCommand(cleanup.NewCommand())

	// Bookkeeping commands
	rootCmd.AddCommand(historycmd.NewCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
