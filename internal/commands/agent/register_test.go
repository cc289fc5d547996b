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

package agent

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlease/devlease/internal/cli"
)

// execute runs the CLI against an isolated state directory.
func execute(t *testing.T, stateDir string, args ...string) (string, string, error) {
	t.Helper()

	root := cli.NewRootCommand()
	root.AddCommand(NewRegisterCommand())
	root.AddCommand(NewUnregisterCommand())

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args,
		"--state-dir", stateDir,
		"--config", filepath.Join(stateDir, "no-settings.yaml")))

	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestRegisterUnregisterFlow(t *testing.T) {
	stateDir := t.TempDir()

	out, errOut, err := execute(t, stateDir, "register", "--agent", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))
	assert.Contains(t, errOut, "registered agent-a")

	out, _, err = execute(t, stateDir, "register", "--agent", "agent-b")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))

	out, errOut, err = execute(t, stateDir, "unregister", "--agent", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))
	assert.Contains(t, errOut, "1 remaining")

	out, _, err = execute(t, stateDir, "unregister", "--agent", "agent-b")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))
}

func TestRegisterIdempotent(t *testing.T) {
	stateDir := t.TempDir()

	out, _, err := execute(t, stateDir, "register", "--agent", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	out, _, err = execute(t, stateDir, "register", "--agent", "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))
}

func TestUnregisterAbsentAgent(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "unregister", "--agent", "never-there")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))
}

func TestRegisterQuietSuppressesSummary(t *testing.T) {
	out, errOut, err := execute(t, t.TempDir(), "register", "--agent", "agent-a", "--quiet")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))
	assert.Empty(t, errOut)
}

func TestRegisterJSONOutput(t *testing.T) {
	out, _, err := execute(t, t.TempDir(), "register", "--agent", "agent-a", "--json")
	require.NoError(t, err)

	var result countResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "agent-a", result.AgentID)
	assert.Equal(t, 1, result.Count)
}

func TestRegisterDefaultsAgentToPID(t *testing.T) {
	stateDir := t.TempDir()

	out, errOut, err := execute(t, stateDir, "register")
	require.NoError(t, err)
	assert.Equal(t, "1", strings.TrimSpace(out))

	// The summary names the agent, which defaults to this process's pid.
	pid := resolveAgentID("")
	_, convErr := strconv.Atoi(pid)
	require.NoError(t, convErr)
	assert.Contains(t, errOut, pid)

	out, _, err = execute(t, stateDir, "unregister")
	require.NoError(t, err)
	assert.Equal(t, "0", strings.TrimSpace(out))
}

func TestRegisterWritesAuditLog(t *testing.T) {
	stateDir := t.TempDir()

	_, _, err := execute(t, stateDir, "register", "--agent", "agent-a")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(stateDir, "events.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"register"`)
	assert.Contains(t, string(data), `"agent_id":"agent-a"`)
}
