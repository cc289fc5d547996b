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

import (
	"fmt"
	"strings"
	"sync"
)

// Mem is an in-process Store with the same semantics as Dir. It is safe for
// concurrent use, which lets tests drive contending "processes" from
// goroutines sharing one store.
type Mem struct {
	mu         sync.Mutex
	records    map[string][]byte
	containers map[string]bool
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		records:    make(map[string][]byte),
		containers: make(map[string]bool),
	}
}

// Get returns the record contents, or ErrNotExist.
func (m *Mem) Get(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.records[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put replaces the record contents.
func (m *Mem) Put(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.records[name] = stored
	return nil
}

// Delete removes the record, ignoring absence.
func (m *Mem) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, name)
	delete(m.containers, name)
	return nil
}

// Exists reports whether the record is present.
func (m *Mem) Exists(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[name]; ok {
		return true, nil
	}
	return m.containers[name], nil
}

// CreateExclusive creates the container, failing with ErrExists if present.
// The check and the create happen under one mutex hold, so exactly one
// concurrent caller wins.
func (m *Mem) CreateExclusive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.containers[name] {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	if _, ok := m.records[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	m.containers[name] = true
	return nil
}

// RemoveAll removes the record and any children, ignoring absence.
func (m *Mem) RemoveAll(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.containers, name)
	delete(m.records, name)
	prefix := name + "/"
	for key := range m.records {
		if strings.HasPrefix(key, prefix) {
			delete(m.records, key)
		}
	}
	for key := range m.containers {
		if strings.HasPrefix(key, prefix) {
			delete(m.containers, key)
		}
	}
	return nil
}
