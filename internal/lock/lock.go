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

package lock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/devlease/devlease/internal/proc"
	"github.com/devlease/devlease/internal/retry"
	"github.com/devlease/devlease/internal/store"
)

var (
	// ErrAcquireTimeout is returned when the lock stays held by a live owner
	// for the caller's whole retry budget.
	ErrAcquireTimeout = errors.New("lock acquisition timed out")

	// ErrNotOwner is returned by Release when the recorded holder is not the
	// calling process.
	ErrNotOwner = errors.New("lock is not held by this process")
)

const (
	// DefaultName is the record name for the coordination lock.
	DefaultName = "lock"

	// DefaultMaxAge is how long a lock may be held before it is considered
	// stale even if the holder process still exists.
	DefaultMaxAge = 5 * time.Minute

	ownerRecord = "owner"
)

// DefaultPolicy returns the standard acquisition retry policy.
func DefaultPolicy() retry.Policy {
	return retry.Policy{Timeout: 30 * time.Second, Interval: time.Second}
}

// Owner describes the recorded holder of a lock.
type Owner struct {
	PID        int
	AcquiredAt time.Time
	User       string
	Host       string
}

// Age returns how long the owner has held the lock.
func (o Owner) Age() time.Duration {
	return time.Since(o.AcquiredAt)
}

// Lock is a host-local advisory mutual-exclusion token backed by a store
// record. Multiple Lock values (in any number of processes) pointing at the
// same record contend for the same lock.
type Lock struct {
	store  store.Store
	name   string
	maxAge time.Duration
	alive  func(int) bool
	logger *slog.Logger
	pid    int
}

// New creates a lock over the named store record.
func New(st store.Store, name string, logger *slog.Logger) *Lock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lock{
		store:  st,
		name:   name,
		maxAge: DefaultMaxAge,
		alive:  proc.Alive,
		logger: logger,
		pid:    os.Getpid(),
	}
}

// WithMaxAge overrides the staleness age threshold.
func (l *Lock) WithMaxAge(d time.Duration) *Lock {
	l.maxAge = d
	return l
}

// WithAliveFunc overrides the process liveness probe.
func (l *Lock) WithAliveFunc(alive func(int) bool) *Lock {
	l.alive = alive
	return l
}

// WithProcessID overrides the pid recorded as holder on acquisition.
// Tests use this to drive several contending "processes" from one process.
func (l *Lock) WithProcessID(pid int) *Lock {
	l.pid = pid
	return l
}

// Acquire attempts to take the lock, retrying until the policy's budget is
// spent. Each failed attempt runs stale-lock detection, so a lock abandoned
// by a dead or wedged holder is reclaimed within one retry interval rather
// than blocking callers until their timeout.
func (l *Lock) Acquire(p retry.Policy) error {
	deadline := time.Now().Add(p.Timeout)

	for {
		err := l.store.CreateExclusive(l.name)
		if err == nil {
			// The path now exists and nothing else protects the owner
			// record: write it before doing anything else.
			if werr := l.writeOwner(); werr != nil {
				_ = l.store.RemoveAll(l.name)
				return fmt.Errorf("failed to write owner record: %w", werr)
			}
			l.logger.Debug("lock acquired", "lock", l.name, "pid", l.pid)
			return nil
		}
		if !errors.Is(err, store.ErrExists) {
			return fmt.Errorf("failed to create lock %s: %w", l.name, err)
		}

		if stale, reason := l.stale(); stale {
			if l.removeStale(reason) {
				// Reclaimed; retry creation within this same call.
				continue
			}
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s still held after %v", ErrAcquireTimeout, l.name, p.Timeout)
		}
		time.Sleep(p.Interval)
	}
}

// Release removes the lock if and only if the recorded holder pid is the
// caller's. On any mismatch it refuses and leaves the lock untouched.
func (l *Lock) Release() error {
	data, err := l.store.Get(l.ownerName())
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return fmt.Errorf("%w: no owner record", ErrNotOwner)
		}
		return fmt.Errorf("failed to read owner record: %w", err)
	}

	owner, err := parseOwner(data)
	if err != nil {
		return fmt.Errorf("%w: owner record unreadable", ErrNotOwner)
	}
	if owner.PID != l.pid {
		return fmt.Errorf("%w: held by pid %d", ErrNotOwner, owner.PID)
	}

	if err := l.store.RemoveAll(l.name); err != nil {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	l.logger.Debug("lock released", "lock", l.name, "pid", l.pid)
	return nil
}

// IsLocked reports whether a valid lock is currently held. A stale lock is
// removed on the way, so the check itself performs cleanup.
func (l *Lock) IsLocked() bool {
	exists, err := l.store.Exists(l.name)
	if err != nil || !exists {
		return false
	}
	if stale, reason := l.stale(); stale {
		l.removeStale(reason)
		return false
	}
	return true
}

// StaleSweep removes the lock if it has gone stale and reports whether a
// removal happened. Acquire and IsLocked run the same sweep internally;
// this entry point exists for explicit cleanup passes.
func (l *Lock) StaleSweep() bool {
	exists, err := l.store.Exists(l.name)
	if err != nil || !exists {
		return false
	}
	if stale, reason := l.stale(); stale {
		return l.removeStale(reason)
	}
	return false
}

// Owner returns the recorded holder, or false when the lock is absent or
// its owner record cannot be read.
func (l *Lock) Owner() (Owner, bool) {
	data, err := l.store.Get(l.ownerName())
	if err != nil {
		return Owner{}, false
	}
	owner, err := parseOwner(data)
	if err != nil {
		return Owner{}, false
	}
	return owner, true
}

// stale decides whether the current lock may be swept. A missing or
// unreadable owner record counts as stale: it is the leftover of a process
// that died between creating the lock and writing its metadata.
func (l *Lock) stale() (bool, string) {
	data, err := l.store.Get(l.ownerName())
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return true, "owner record missing"
		}
		return false, ""
	}

	owner, err := parseOwner(data)
	if err != nil {
		return true, "owner record malformed"
	}
	if !l.alive(owner.PID) {
		return true, fmt.Sprintf("holder pid %d not running", owner.PID)
	}
	if age := owner.Age(); age > l.maxAge {
		return true, fmt.Sprintf("held for %v, exceeds %v", age.Round(time.Second), l.maxAge)
	}
	return false, ""
}

// removeStale deletes the lock unconditionally and reports whether the
// removal went through. This path runs without holding the lock it sweeps,
// which is safe because it only ever deletes contested state.
func (l *Lock) removeStale(reason string) bool {
	l.logger.Info("removing stale lock", "lock", l.name, "reason", reason)
	if err := l.store.RemoveAll(l.name); err != nil {
		l.logger.Warn("failed to remove stale lock", "lock", l.name, "error", err)
		return false
	}
	return true
}

func (l *Lock) ownerName() string {
	return l.name + "/" + ownerRecord
}

func (l *Lock) writeOwner() error {
	record := fmt.Sprintf("%d:%d:%s:%s", l.pid, time.Now().Unix(), currentUser(), hostname())
	return l.store.Put(l.ownerName(), []byte(record+"\n"))
}

// parseOwner decodes a "pid:acquired_unix:user:host" owner record.
func parseOwner(data []byte) (Owner, error) {
	fields := strings.Split(strings.TrimSpace(string(data)), ":")
	if len(fields) != 4 {
		return Owner{}, fmt.Errorf("expected 4 fields, got %d", len(fields))
	}

	pid, err := strconv.Atoi(fields[0])
	if err != nil || pid <= 0 {
		return Owner{}, fmt.Errorf("invalid holder pid %q", fields[0])
	}
	acquired, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Owner{}, fmt.Errorf("invalid acquisition time %q", fields[1])
	}

	return Owner{
		PID:        pid,
		AcquiredAt: time.Unix(acquired, 0),
		User:       fields[2],
		Host:       fields[3],
	}, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
