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

// Package coordinator implements cooperative shutdown for the shared server.
// A stop request is a persisted record any process can write; the server
// owner polls for it, then waits for the registry to drain before actually
// stopping. Nothing here kills a process, it only carries intent.
package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/devlease/devlease/internal/registry"
	"github.com/devlease/devlease/internal/retry"
	"github.com/devlease/devlease/internal/store"
)

// DefaultStopRecord is the record name carrying a pending stop request.
const DefaultStopRecord = "stop.request"

// ErrDrainTimeout is returned when live registrations remain for the whole
// drain budget.
var ErrDrainTimeout = errors.New("registrations did not drain in time")

// DefaultDrainPolicy returns the standard drain-wait policy.
func DefaultDrainPolicy() retry.Policy {
	return retry.Policy{Timeout: 60 * time.Second, Interval: 5 * time.Second}
}

// StopRequest is a decoded pending stop request.
type StopRequest struct {
	RequestedAt time.Time
	Reason      string
}

// Coordinator mediates shutdown between stop requesters and the server
// owner.
type Coordinator struct {
	store    store.Store
	registry *registry.Registry
	record   string
	logger   *slog.Logger
}

// New creates a coordinator over the given store and registry.
func New(st store.Store, reg *registry.Registry, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    st,
		registry: reg,
		record:   DefaultStopRecord,
		logger:   logger,
	}
}

// Notify records a stop request. Overwriting an existing request is fine;
// the latest reason wins.
func (c *Coordinator) Notify(reason string) error {
	record := fmt.Sprintf("%d:%s\n", time.Now().Unix(), reason)
	if err := c.store.Put(c.record, []byte(record)); err != nil {
		return fmt.Errorf("failed to write stop request: %w", err)
	}
	c.logger.Info("stop requested", "reason", reason)
	return nil
}

// IsStopRequested reports whether a stop request is pending. Read errors
// and corrupt records read as "no request"; a server that misses a corrupt
// request keeps running, which is the safe failure.
func (c *Coordinator) IsStopRequested() bool {
	_, ok := c.Request()
	return ok
}

// Request returns the pending stop request, or false when none exists.
func (c *Coordinator) Request() (StopRequest, bool) {
	data, err := c.store.Get(c.record)
	if err != nil {
		return StopRequest{}, false
	}
	req, err := parseRequest(data)
	if err != nil {
		c.logger.Debug("unreadable stop request", "error", err)
		return StopRequest{}, false
	}
	return req, true
}

// Clear removes a pending stop request, typically after the server has
// honored it or an operator has cancelled it.
func (c *Coordinator) Clear() error {
	if err := c.store.Delete(c.record); err != nil && !errors.Is(err, store.ErrNotExist) {
		return fmt.Errorf("failed to clear stop request: %w", err)
	}
	return nil
}

// WaitForDrain blocks until the registry has no live registrations, checking
// once per interval. Each check sweeps dead registrations first, so a drain
// blocked only by crashed agents completes on the next poll. Survivors are
// logged every iteration so an operator watching the wait can see who is
// holding it up.
func (c *Coordinator) WaitForDrain(p retry.Policy) error {
	deadline := time.Now().Add(p.Timeout)

	for {
		check, err := c.registry.CanDrain()
		if err != nil {
			return fmt.Errorf("failed to check registrations: %w", err)
		}
		if check.Drained {
			c.logger.Info("all registrations drained")
			return nil
		}

		agents := make([]string, 0, len(check.Remaining))
		for _, reg := range check.Remaining {
			agents = append(agents, fmt.Sprintf("%s(pid %d)", reg.AgentID, reg.PID))
		}
		c.logger.Info("waiting for registrations to drain",
			"remaining", len(check.Remaining),
			"agents", strings.Join(agents, ", "))

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %d remaining after %v", ErrDrainTimeout, len(check.Remaining), p.Timeout)
		}
		time.Sleep(p.Interval)
	}
}

// parseRequest decodes a "requested_unix:reason" record. The reason may
// itself contain colons, so only the first separator splits.
func parseRequest(data []byte) (StopRequest, error) {
	fields := strings.SplitN(strings.TrimSpace(string(data)), ":", 2)
	if len(fields) != 2 {
		return StopRequest{}, fmt.Errorf("expected 2 fields, got %d", len(fields))
	}
	requested, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return StopRequest{}, fmt.Errorf("invalid request time %q", fields[0])
	}
	return StopRequest{RequestedAt: time.Unix(requested, 0), Reason: fields[1]}, nil
}
