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

// Package registry tracks the set of active users of the shared server as a
// reference-counted registration list. Mutations run under the coordination
// lock and sweep dead registrations first, so the persisted count always
// equals the surviving list length afterwards.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/devlease/devlease/internal/lock"
	"github.com/devlease/devlease/internal/proc"
	"github.com/devlease/devlease/internal/retry"
	"github.com/devlease/devlease/internal/store"
)

const (
	// CountRecord holds the persisted registration count as a bare integer.
	CountRecord = "agents.count"

	// ListRecord holds one registration per line, colon-separated.
	ListRecord = "agents.list"
)

// Registration is one caller's claim that the shared server must stay up.
type Registration struct {
	AgentID      string
	PID          int
	RegisteredAt time.Time
	User         string
}

// Age returns how long the registration has existed.
func (r Registration) Age() time.Duration {
	return time.Since(r.RegisteredAt)
}

// DrainCheck is the precondition callers consult before tearing the shared
// server down. Remaining carries the post-sweep survivors so a waiting
// caller can report who it is waiting for.
type DrainCheck struct {
	Drained   bool
	Remaining []Registration
}

// Registry is the reference-counted set of active users.
type Registry struct {
	store  store.Store
	lock   *lock.Lock
	policy retry.Policy
	alive  func(int) bool
	logger *slog.Logger
	pid    int
	user   string
}

// New creates a registry over the given store, synchronized by the given
// lock.
func New(st store.Store, lk *lock.Lock, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  st,
		lock:   lk,
		policy: lock.DefaultPolicy(),
		alive:  proc.Alive,
		logger: logger,
		pid:    os.Getpid(),
		user:   currentUser(),
	}
}

// WithLockPolicy overrides the retry policy used when acquiring the
// coordination lock.
func (r *Registry) WithLockPolicy(p retry.Policy) *Registry {
	r.policy = p
	return r
}

// WithAliveFunc overrides the process liveness probe.
func (r *Registry) WithAliveFunc(alive func(int) bool) *Registry {
	r.alive = alive
	return r
}

// WithProcessID overrides the pid recorded on new registrations.
func (r *Registry) WithProcessID(pid int) *Registry {
	r.pid = pid
	return r
}

// Register adds the agent to the active set and returns the new count.
// Registering an agent that is already present is a no-op, so retries after
// an ambiguous failure are safe. Lock contention propagates as an error.
func (r *Registry) Register(agentID string) (int, error) {
	if agentID == "" {
		agentID = strconv.Itoa(r.pid)
	}

	if err := r.lock.Acquire(r.policy); err != nil {
		return 0, fmt.Errorf("failed to register %s: %w", agentID, err)
	}
	defer r.releaseLock()

	regs, err := r.sweep()
	if err != nil {
		return 0, err
	}

	for _, reg := range regs {
		if reg.AgentID == agentID {
			r.logger.Info("agent already registered", "agent", agentID, "count", len(regs))
			return len(regs), nil
		}
	}

	regs = append(regs, Registration{
		AgentID:      agentID,
		PID:          r.pid,
		RegisteredAt: time.Now(),
		User:         r.user,
	})
	if err := r.writeAll(regs); err != nil {
		return 0, err
	}

	r.logger.Info("agent registered", "agent", agentID, "pid", r.pid, "count", len(regs))
	return len(regs), nil
}

// Unregister removes the agent from the active set and returns the
// remaining count. Unregistering an agent that is not present is a no-op.
// When the last registration goes, the list and count records are deleted
// entirely, so "fully drained" is distinguishable from "never initialized".
func (r *Registry) Unregister(agentID string) (int, error) {
	if agentID == "" {
		agentID = strconv.Itoa(r.pid)
	}

	if err := r.lock.Acquire(r.policy); err != nil {
		return 0, fmt.Errorf("failed to unregister %s: %w", agentID, err)
	}
	defer r.releaseLock()

	regs, err := r.sweep()
	if err != nil {
		return 0, err
	}

	idx := -1
	for i, reg := range regs {
		if reg.AgentID == agentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.logger.Info("agent not registered", "agent", agentID)
		return 0, nil
	}

	regs = append(regs[:idx], regs[idx+1:]...)
	if err := r.writeAll(regs); err != nil {
		return 0, err
	}

	r.logger.Info("agent unregistered", "agent", agentID, "remaining", len(regs))
	return len(regs), nil
}

// Count reads the persisted count without sweeping. It is the lock-free
// fast path and may be stale relative to a concurrent sweep; a missing or
// corrupt counter reads as zero until the next sweep rebuilds it.
func (r *Registry) Count() int {
	data, err := r.store.Get(CountRecord)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// List returns the current registrations in record order. It does not take
// the lock and may observe a snapshot mid-mutation; malformed lines are
// skipped here and left for the next sweep to drop.
func (r *Registry) List() ([]Registration, error) {
	data, err := r.store.Get(ListRecord)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registrations: %w", err)
	}

	var regs []Registration
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		reg, err := parseRegistration(line)
		if err != nil {
			r.logger.Debug("skipping malformed registration", "line", line, "error", err)
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// SweepDead drops registrations whose process is gone and returns the
// surviving registration count. It runs without the lock: it only ever
// deletes contested state, and it rewrites the count from the surviving
// list length rather than trusting incremental arithmetic.
func (r *Registry) SweepDead() (int, error) {
	regs, err := r.sweep()
	if err != nil {
		return 0, err
	}
	return len(regs), nil
}

// CanDrain sweeps and reports whether zero live registrations remain.
func (r *Registry) CanDrain() (DrainCheck, error) {
	regs, err := r.sweep()
	if err != nil {
		return DrainCheck{}, err
	}
	return DrainCheck{Drained: len(regs) == 0, Remaining: regs}, nil
}

// sweep loads the registration list, drops malformed lines and
// entries with dead processes, and persists the result when anything
// changed. A malformed entry is treated as dead, never as a reason to fail.
func (r *Registry) sweep() ([]Registration, error) {
	data, err := r.store.Get(ListRecord)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read registrations: %w", err)
	}

	var survivors []Registration
	dropped := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		reg, err := parseRegistration(line)
		if err != nil {
			r.logger.Warn("dropping malformed registration", "line", line, "error", err)
			dropped++
			continue
		}
		if !r.alive(reg.PID) {
			r.logger.Info("dropping dead registration", "agent", reg.AgentID, "pid", reg.PID)
			dropped++
			continue
		}
		survivors = append(survivors, reg)
	}

	// The persisted count may itself be corrupt; any sweep that changes the
	// list rewrites it from the survivor length.
	if dropped > 0 || r.countDisagrees(len(survivors)) {
		if err := r.writeAll(survivors); err != nil {
			return nil, err
		}
	}
	return survivors, nil
}

// countDisagrees reports whether the persisted count record differs from
// the actual list length, which happens after external corruption.
func (r *Registry) countDisagrees(want int) bool {
	data, err := r.store.Get(CountRecord)
	if err != nil {
		return true
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return err != nil || n != want
}

// writeAll persists the registration list and rewrites the count to the
// exact list length. An empty list deletes both records.
func (r *Registry) writeAll(regs []Registration) error {
	if len(regs) == 0 {
		if err := r.store.Delete(ListRecord); err != nil {
			return fmt.Errorf("failed to delete registration list: %w", err)
		}
		if err := r.store.Delete(CountRecord); err != nil {
			return fmt.Errorf("failed to delete registration count: %w", err)
		}
		return nil
	}

	var b strings.Builder
	for _, reg := range regs {
		fmt.Fprintf(&b, "%s:%d:%d:%s\n", reg.AgentID, reg.PID, reg.RegisteredAt.Unix(), reg.User)
	}
	if err := r.store.Put(ListRecord, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to write registration list: %w", err)
	}
	if err := r.store.Put(CountRecord, []byte(strconv.Itoa(len(regs))+"\n")); err != nil {
		return fmt.Errorf("failed to write registration count: %w", err)
	}
	return nil
}

func (r *Registry) releaseLock() {
	if err := r.lock.Release(); err != nil {
		r.logger.Warn("failed to release coordination lock", "error", err)
	}
}

// parseRegistration decodes an "agent_id:pid:registered_unix:user" line.
func parseRegistration(line string) (Registration, error) {
	fields := strings.Split(strings.TrimSpace(line), ":")
	if len(fields) != 4 {
		return Registration{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	pid, err := strconv.Atoi(fields[1])
	if err != nil || pid <= 0 {
		return Registration{}, fmt.Errorf("invalid pid %q", fields[1])
	}
	registered, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Registration{}, fmt.Errorf("invalid registration time %q", fields[2])
	}

	return Registration{
		AgentID:      fields[0],
		PID:          pid,
		RegisteredAt: time.Unix(registered, 0),
		User:         fields[3],
	}, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
