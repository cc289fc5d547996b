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

package shared

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/devlease/devlease/internal/audit"
	"github.com/devlease/devlease/internal/history"
)

// Recorder fans coordination events out to the audit log and the history
// database. Both sinks are best-effort: a coordination operation that
// succeeded is reported as succeeded even when its bookkeeping could not be
// written, with a warning on stderr.
type Recorder struct {
	auditLog *audit.Logger
	hist     *history.DB
}

// NewRecorder creates a recorder over the given sinks. Either may be nil
// when disabled in settings.
func NewRecorder(auditLog *audit.Logger, hist *history.DB) *Recorder {
	return &Recorder{auditLog: auditLog, hist: hist}
}

// Record writes one event to every enabled sink.
func (r *Recorder) Record(event audit.Event) {
	if r == nil {
		return
	}

	correlationID := ""
	if r.auditLog != nil {
		correlationID = r.auditLog.CorrelationID()
		if err := r.auditLog.Log(event); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write audit log: %v\n", err)
		}
	}

	if r.hist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := r.hist.Append(ctx, history.Entry{
			Event:         event.Event,
			CorrelationID: correlationID,
			AgentID:       event.AgentID,
			PID:           event.PID,
			Count:         event.Count,
			Reason:        event.Reason,
			Success:       event.Success,
			Error:         event.Error,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record history: %v\n", err)
		}
	}
}

// RecordRegister records a successful registration.
func (r *Recorder) RecordRegister(agentID string, pid, count int) {
	r.Record(audit.Event{
		Event:   audit.EventRegister,
		AgentID: agentID,
		PID:     pid,
		Count:   count,
		Success: true,
	})
}

// RecordUnregister records a successful unregistration.
func (r *Recorder) RecordUnregister(agentID string, pid, remaining int) {
	r.Record(audit.Event{
		Event:   audit.EventUnregister,
		AgentID: agentID,
		PID:     pid,
		Count:   remaining,
		Success: true,
	})
}

// RecordStopRequest records a stop request being filed.
func (r *Recorder) RecordStopRequest(reason string, pid int) {
	r.Record(audit.Event{
		Event:   audit.EventStopRequest,
		PID:     pid,
		Reason:  reason,
		Success: true,
	})
}

// RecordStopClear records a stop request being withdrawn.
func (r *Recorder) RecordStopClear(pid int) {
	r.Record(audit.Event{
		Event:   audit.EventStopClear,
		PID:     pid,
		Success: true,
	})
}

// RecordSweep records dead registrations being dropped.
func (r *Recorder) RecordSweep(removed, remaining int) {
	r.Record(audit.Event{
		Event:   audit.EventSweep,
		Count:   remaining,
		Success: true,
		Message: fmt.Sprintf("%d dead registrations removed", removed),
	})
}

// RecordStaleSweep records a stale coordination lock being removed.
func (r *Recorder) RecordStaleSweep() {
	r.Record(audit.Event{
		Event:   audit.EventStaleLock,
		Success: true,
	})
}

// RecordDrainStart records a drain wait beginning.
func (r *Recorder) RecordDrainStart(remaining int) {
	r.Record(audit.Event{
		Event:   audit.EventDrainStart,
		Count:   remaining,
		Success: true,
	})
}

// RecordDrainDone records a completed drain wait.
func (r *Recorder) RecordDrainDone(waited time.Duration) {
	r.Record(audit.Event{
		Event:   audit.EventDrainDone,
		Success: true,
		Message: fmt.Sprintf("registrations drained after %v", waited.Round(time.Millisecond)),
	})
}

// RecordDrainTimeout records a drain wait giving up.
func (r *Recorder) RecordDrainTimeout(remaining int, err error) {
	r.Record(audit.Event{
		Event:   audit.EventDrainTimeout,
		Count:   remaining,
		Success: false,
		Error:   err.Error(),
	})
}

// RecordCleanup records a sweep of dead registrations and stale locks.
func (r *Recorder) RecordCleanup(remaining int) {
	r.Record(audit.Event{
		Event:   audit.EventCleanup,
		Count:   remaining,
		Success: true,
	})
}
