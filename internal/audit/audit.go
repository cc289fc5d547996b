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

// Package audit appends coordination lifecycle events to a JSON-lines log
// file. The log answers "who registered, who asked for a stop, and when"
// after the fact; it is append-only and never read back by devlease itself.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Event types recorded in the audit log.
const (
	EventRegister     = "register"
	EventUnregister   = "unregister"
	EventSweep        = "sweep"
	EventStopRequest  = "stop_request"
	EventStopClear    = "stop_clear"
	EventDrainStart   = "drain_start"
	EventDrainDone    = "drain_done"
	EventDrainTimeout = "drain_timeout"
	EventStaleLock    = "stale_lock_removed"
	EventCleanup      = "cleanup"
)

// Event is one audit log entry.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Event         string    `json:"event"`
	CorrelationID string    `json:"correlation_id"`
	AgentID       string    `json:"agent_id,omitempty"`
	PID           int       `json:"pid,omitempty"`
	Count         int       `json:"count,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Success       bool      `json:"success"`
	Message       string    `json:"message,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Logger appends events to a JSON-lines file. Each Logger carries one
// correlation id, shared by every event of the CLI invocation that created
// it, so a register and the sweep it triggered can be tied together later.
type Logger struct {
	logPath       string
	correlationID string
}

// NewLogger creates an audit logger writing to the given path.
func NewLogger(logPath string) *Logger {
	return &Logger{
		logPath:       logPath,
		correlationID: uuid.NewString(),
	}
}

// CorrelationID returns the id stamped on this logger's events.
func (l *Logger) CorrelationID() string {
	return l.correlationID
}

// Log appends an event, filling in the timestamp and correlation id.
func (l *Logger) Log(event Event) error {
	event.Timestamp = time.Now()
	event.CorrelationID = l.correlationID
	return l.writeEvent(event)
}

// writeEvent appends one event line, creating the log directory on first
// use.
func (l *Logger) writeEvent(event Event) error {
	if err := os.MkdirAll(filepath.Dir(l.logPath), 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}
