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
Package store provides the persistence capability the coordination core is
built on: a small set of named, plain-text records with one atomic primitive.

# Records

A record name is a slash-separated relative path ("agents.count",
"lock/owner"). Records are whole-value: a Put replaces the entire record or
leaves the old one intact, never a partial write. Everything stored is
human-inspectable text, safe to delete by hand as a last resort.

# The exclusive primitive

CreateExclusive is the only synchronization primitive. It creates a container
record if and only if it does not already exist, failing with ErrExists
otherwise. The filesystem implementation maps this to directory creation,
which fails atomically when the target exists on all local filesystems,
giving compare-and-swap semantics without cross-platform file-locking APIs.

Two implementations are provided: Dir, backed by a directory tree, and Mem,
an in-process fake with identical semantics for tests.
*/
package store
