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

/*
Package lock implements host-local advisory mutual exclusion for processes
sharing one filesystem.

The existence of the lock record is the lock. Acquisition is an atomic
create-if-absent; the winner immediately writes an owner record (pid,
acquisition time, user, host) inside it. There is no secondary mutex around
the owner record, so a process dying between the create and the metadata
write leaves a partial lock, which any later caller detects and removes.

# Staleness

A lock is stale when its owner record is missing or malformed, when a
liveness probe of the recorded holder fails, or when it has been held longer
than the maximum age even if the holder still exists (a wedged holder).
Staleness is checked on every failed acquisition attempt and on IsLocked, and
repair is unconditional removal. Checking a lock can therefore itself
perform cleanup:

	lk := lock.New(st, lock.DefaultName, logger)
	if err := lk.Acquire(lock.DefaultPolicy()); err != nil {
	    // Contention: another live holder kept the lock for the whole budget.
	}
	defer lk.Release()

# Ownership

Release compares the recorded holder pid against the caller's pid by value.
A pid can in principle be reused by an unrelated process after the original
holder dies; see DESIGN.md for why this is left as-is.
*/
package lock
