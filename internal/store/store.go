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

package store

import "errors"

var (
	// ErrNotExist is returned when the named record does not exist.
	ErrNotExist = errors.New("record does not exist")

	// ErrExists is returned by CreateExclusive when the record already exists.
	ErrExists = errors.New("record already exists")
)

// Store is get/put/delete over named plain-text records, plus the atomic
// create-if-absent primitive the lock is built on.
//
// Record names are slash-separated relative paths. A record created with
// CreateExclusive is a container: child records live under "name/child" and
// are removed together by RemoveAll.
type Store interface {
	// Get returns the record contents, or ErrNotExist.
	Get(name string) ([]byte, error)

	// Put atomically replaces the record contents. A reader never observes
	// a partially written record.
	Put(name string, data []byte) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(name string) error

	// Exists reports whether the record is present.
	Exists(name string) (bool, error)

	// CreateExclusive atomically creates an empty container record, failing
	// with ErrExists if it is already present. Exactly one of any number of
	// concurrent callers succeeds.
	CreateExclusive(name string) error

	// RemoveAll removes the record and any children. Removing an absent
	// record is not an error.
	RemoveAll(name string) error
}
