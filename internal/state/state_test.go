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

package state

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlease/devlease/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestState_SetAndRead(t *testing.T) {
	st := New(store.NewMem(), discard())

	require.NoError(t, st.Set(StatusRunning, 101))
	assert.Equal(t, StatusRunning, st.Status())
	assert.Equal(t, 101, st.OwnerPID())

	info, ok := st.Info()
	require.True(t, ok)
	assert.Equal(t, StatusRunning, info.Status)
	assert.Equal(t, 101, info.PID)
	assert.WithinDuration(t, time.Now(), info.ChangedAt, 2*time.Second)

	require.NoError(t, st.Set(StatusStopping, 101))
	assert.Equal(t, StatusStopping, st.Status())
}

func TestState_CallerDefinedStatusRoundTrips(t *testing.T) {
	st := New(store.NewMem(), discard())

	// The named constants are a convention, not a whitelist.
	require.NoError(t, st.Set(Status("migrating"), 101))
	assert.Equal(t, Status("migrating"), st.Status())
	assert.Equal(t, 101, st.OwnerPID())
}

func TestState_SetRejectsMalformedStatus(t *testing.T) {
	st := New(store.NewMem(), discard())

	assert.Error(t, st.Set(Status(""), 101))
	assert.Error(t, st.Set(Status("half:baked"), 101))
	assert.Error(t, st.Set(Status("two\nlines"), 101))
}

func TestState_MissingRecordReadsAsUnknown(t *testing.T) {
	st := New(store.NewMem(), discard())

	assert.Equal(t, StatusUnknown, st.Status())
	assert.Equal(t, 0, st.OwnerPID())

	_, ok := st.Info()
	assert.False(t, ok)

	raw, err := st.Raw()
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestState_CorruptRecordReadsAsUnknown(t *testing.T) {
	mem := store.NewMem()
	st := New(mem, discard())

	require.NoError(t, mem.Put(Record, []byte("half a record\n")))
	assert.Equal(t, StatusUnknown, st.Status())
	assert.Equal(t, 0, st.OwnerPID())

	// Raw still exposes the bytes so an operator can see what went wrong.
	raw, err := st.Raw()
	require.NoError(t, err)
	assert.Equal(t, "half a record\n", raw)
}

func TestState_Clear(t *testing.T) {
	mem := store.NewMem()
	st := New(mem, discard())

	require.NoError(t, st.Set(StatusStopped, 101))
	require.NoError(t, st.Clear())
	assert.Equal(t, StatusUnknown, st.Status())

	// Clearing an already-absent record is a no-op.
	require.NoError(t, st.Clear())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		wantErr bool
		want    Status
	}{
		{"running", "running:101:1700000000", false, StatusRunning},
		{"stopped", "stopped:0:1700000000", false, StatusStopped},
		{"caller-defined status", "rebooting:101:1700000000", false, Status("rebooting")},
		{"empty status", ":101:1700000000", true, ""},
		{"too few fields", "running:101", true, ""},
		{"negative pid", "running:-1:1700000000", true, ""},
		{"non-numeric time", "running:101:later", true, ""},
		{"empty", "", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parse([]byte(tt.record))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Status)
		})
	}
}
