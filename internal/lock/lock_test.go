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
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devlease/devlease/internal/retry"
	"github.com/devlease/devlease/internal/store"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLiveness simulates a process table for tests.
type fakeLiveness struct {
	mu   sync.Mutex
	dead map[int]bool
}

func newFakeLiveness() *fakeLiveness {
	return &fakeLiveness{dead: make(map[int]bool)}
}

func (f *fakeLiveness) kill(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[pid] = true
}

func (f *fakeLiveness) alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead[pid]
}

func fastPolicy() retry.Policy {
	return retry.Policy{Timeout: 100 * time.Millisecond, Interval: time.Millisecond}
}

func TestLock_AcquireRelease(t *testing.T) {
	st := store.NewMem()
	lk := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(func(int) bool { return true })

	require.NoError(t, lk.Acquire(fastPolicy()))
	assert.True(t, lk.IsLocked())

	owner, ok := lk.Owner()
	require.True(t, ok)
	assert.Equal(t, 101, owner.PID)
	assert.WithinDuration(t, time.Now(), owner.AcquiredAt, 2*time.Second)

	require.NoError(t, lk.Release())
	assert.False(t, lk.IsLocked())
	_, ok = lk.Owner()
	assert.False(t, ok)
}

func TestLock_MutualExclusion(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()
	a := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(live.alive)
	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)

	require.NoError(t, a.Acquire(fastPolicy()))

	err := b.Acquire(retry.Policy{Timeout: 50 * time.Millisecond, Interval: 5 * time.Millisecond})
	assert.ErrorIs(t, err, ErrAcquireTimeout)

	// Held throughout: the failed contender must not have disturbed it.
	owner, ok := a.Owner()
	require.True(t, ok)
	assert.Equal(t, 101, owner.PID)

	require.NoError(t, a.Release())
	require.NoError(t, b.Acquire(fastPolicy()))
	require.NoError(t, b.Release())
}

func TestLock_AcquireTimeoutRespectsBudget(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()
	a := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(live.alive)
	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)

	require.NoError(t, a.Acquire(fastPolicy()))

	budget := 80 * time.Millisecond
	start := time.Now()
	err := b.Acquire(retry.Policy{Timeout: budget, Interval: 5 * time.Millisecond})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.GreaterOrEqual(t, elapsed, budget)
	assert.Less(t, elapsed, budget+500*time.Millisecond)

	// Immediately after release, acquisition succeeds without waiting.
	require.NoError(t, a.Release())
	start = time.Now()
	require.NoError(t, b.Acquire(fastPolicy()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLock_ReleaseRefusedForNonOwner(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()
	a := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(live.alive)
	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)

	require.NoError(t, a.Acquire(fastPolicy()))

	err := b.Release()
	assert.ErrorIs(t, err, ErrNotOwner)

	// The refusal must leave the lock untouched.
	assert.True(t, a.IsLocked())
	owner, ok := a.Owner()
	require.True(t, ok)
	assert.Equal(t, 101, owner.PID)
}

func TestLock_ReleaseWithoutLock(t *testing.T) {
	st := store.NewMem()
	lk := New(st, DefaultName, discard()).WithProcessID(101)

	assert.ErrorIs(t, lk.Release(), ErrNotOwner)
}

func TestLock_StaleDeadHolderReclaimedBeforeAgeThreshold(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()
	a := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(live.alive)
	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)

	require.NoError(t, a.Acquire(fastPolicy()))

	// The holder dies one second into a five-minute max age: reclamation
	// must come from the liveness probe, not the age threshold.
	live.kill(101)

	start := time.Now()
	require.NoError(t, b.Acquire(fastPolicy()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	owner, ok := b.Owner()
	require.True(t, ok)
	assert.Equal(t, 102, owner.PID)
}

func TestLock_StaleByAgeEvenWithLiveHolder(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()

	// Plant an owner record old enough to breach the age threshold while
	// its holder is still alive (a wedged holder).
	require.NoError(t, st.CreateExclusive(DefaultName))
	old := time.Now().Add(-10 * time.Minute).Unix()
	require.NoError(t, st.Put(DefaultName+"/owner", []byte(fmt.Sprintf("101:%d:alice:devbox\n", old))))

	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)
	require.NoError(t, b.Acquire(fastPolicy()))

	owner, ok := b.Owner()
	require.True(t, ok)
	assert.Equal(t, 102, owner.PID)
}

func TestLock_StaleMissingOwnerRecord(t *testing.T) {
	st := store.NewMem()

	// A partial lock: the path exists but the holder died before writing
	// its owner record.
	require.NoError(t, st.CreateExclusive(DefaultName))

	lk := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(func(int) bool { return true })
	assert.False(t, lk.IsLocked())

	// IsLocked itself performed the cleanup.
	exists, err := st.Exists(DefaultName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLock_StaleMalformedOwnerRecord(t *testing.T) {
	st := store.NewMem()
	require.NoError(t, st.CreateExclusive(DefaultName))
	require.NoError(t, st.Put(DefaultName+"/owner", []byte("not a valid record\n")))

	lk := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(func(int) bool { return true })
	require.NoError(t, lk.Acquire(fastPolicy()))
	require.NoError(t, lk.Release())
}

func TestLock_StaleSweep(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()
	a := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(live.alive)
	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)

	// Nothing to sweep when the lock is absent or validly held.
	assert.False(t, b.StaleSweep())
	require.NoError(t, a.Acquire(fastPolicy()))
	assert.False(t, b.StaleSweep())

	live.kill(101)
	assert.True(t, b.StaleSweep())

	exists, err := st.Exists(DefaultName)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLock_IsLockedValidHolder(t *testing.T) {
	st := store.NewMem()
	live := newFakeLiveness()
	a := New(st, DefaultName, discard()).WithProcessID(101).WithAliveFunc(live.alive)
	b := New(st, DefaultName, discard()).WithProcessID(102).WithAliveFunc(live.alive)

	assert.False(t, b.IsLocked())
	require.NoError(t, a.Acquire(fastPolicy()))
	assert.True(t, b.IsLocked())
}

func TestLock_ConcurrentContendersNeverOverlap(t *testing.T) {
	st := store.NewMem()
	alive := func(int) bool { return true }

	var holders int32
	var maxHolders int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		pid := 200 + i
		wg.Add(1)
		go func() {
			defer wg.Done()
			lk := New(st, DefaultName, discard()).WithProcessID(pid).WithAliveFunc(alive)
			if !assert.NoError(t, lk.Acquire(retry.Policy{Timeout: 5 * time.Second, Interval: time.Millisecond})) {
				return
			}

			n := atomic.AddInt32(&holders, 1)
			for {
				seen := atomic.LoadInt32(&maxHolders)
				if n <= seen || atomic.CompareAndSwapInt32(&maxHolders, seen, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&holders, -1)

			assert.NoError(t, lk.Release())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxHolders), "two contenders held the lock simultaneously")
}

func TestParseOwner(t *testing.T) {
	tests := []struct {
		name    string
		record  string
		wantErr bool
		wantPID int
	}{
		{"valid", "101:1700000000:alice:devbox", false, 101},
		{"trailing newline", "101:1700000000:alice:devbox\n", false, 101},
		{"too few fields", "101:1700000000", true, 0},
		{"non-numeric pid", "abc:1700000000:alice:devbox", true, 0},
		{"zero pid", "0:1700000000:alice:devbox", true, 0},
		{"non-numeric time", "101:soon:alice:devbox", true, 0},
		{"empty", "", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, err := parseOwner([]byte(tt.record))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPID, owner.PID)
		})
	}
}
