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

// Package state persists the shared server's lifecycle record: its status,
// the pid of the process that owns it, and when the status last changed.
// The record is advisory; readers treat a missing or unreadable record as
// "unknown" rather than failing.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/devlease/devlease/internal/store"
)

// Record is the name of the persisted server state record.
const Record = "server.state"

// Status is a lifecycle phase of the shared server.
type Status string

// Conventional lifecycle phases. The set is open: callers may record
// phases of their own, these are just the vocabulary devlease itself uses.
const (
	StatusUnknown  Status = "unknown"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
)

// checkStatus accepts any label that survives the colon-separated record
// format, not just the named constants.
func checkStatus(status Status) error {
	if status == "" {
		return errors.New("empty status")
	}
	if strings.ContainsAny(string(status), ":\n") {
		return errors.New("status must not contain ':' or newline")
	}
	return nil
}

// Info is the decoded server state record.
type Info struct {
	Status    Status
	PID       int
	ChangedAt time.Time
}

// State reads and writes the server lifecycle record.
type State struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a state accessor over the given store.
func New(st store.Store, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{store: st, logger: logger}
}

// Set records a status transition for the server owned by the given pid.
func (s *State) Set(status Status, pid int) error {
	if err := checkStatus(status); err != nil {
		return fmt.Errorf("invalid server status %q: %w", status, err)
	}
	record := fmt.Sprintf("%s:%d:%d\n", status, pid, time.Now().Unix())
	if err := s.store.Put(Record, []byte(record)); err != nil {
		return fmt.Errorf("failed to write server state: %w", err)
	}
	s.logger.Debug("server state updated", "status", status, "pid", pid)
	return nil
}

// Status returns the recorded lifecycle phase. A missing or unreadable
// record reads as StatusUnknown.
func (s *State) Status() Status {
	info, ok := s.read()
	if !ok {
		return StatusUnknown
	}
	return info.Status
}

// OwnerPID returns the pid recorded as the server owner, or 0 when no
// usable record exists.
func (s *State) OwnerPID() int {
	info, ok := s.read()
	if !ok {
		return 0
	}
	return info.PID
}

// Info returns the full decoded record, or false when it is absent or
// unreadable.
func (s *State) Info() (Info, bool) {
	return s.read()
}

// Raw returns the record bytes untouched, for diagnostic display. A missing
// record returns an empty string without error.
func (s *State) Raw() (string, error) {
	data, err := s.store.Get(Record)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read server state: %w", err)
	}
	return string(data), nil
}

// Clear removes the state record, typically after a completed shutdown.
func (s *State) Clear() error {
	if err := s.store.Delete(Record); err != nil && !errors.Is(err, store.ErrNotExist) {
		return fmt.Errorf("failed to clear server state: %w", err)
	}
	return nil
}

func (s *State) read() (Info, bool) {
	data, err := s.store.Get(Record)
	if err != nil {
		return Info{}, false
	}
	info, err := parse(data)
	if err != nil {
		s.logger.Debug("unreadable server state record", "error", err)
		return Info{}, false
	}
	return info, true
}

// parse decodes a "status:pid:changed_unix" record. The status label passes
// through unvalidated beyond shape, so caller-defined phases round-trip.
func parse(data []byte) (Info, error) {
	fields := strings.Split(strings.TrimSpace(string(data)), ":")
	if len(fields) != 3 {
		return Info{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	status := Status(fields[0])
	if status == "" {
		return Info{}, errors.New("empty status field")
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil || pid < 0 {
		return Info{}, fmt.Errorf("invalid pid %q", fields[1])
	}
	changed, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("invalid change time %q", fields[2])
	}

	return Info{Status: status, PID: pid, ChangedAt: time.Unix(changed, 0)}, nil
}
