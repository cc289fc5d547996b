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
	"os"
	"path/filepath"
)

// Dir is a Store backed by files under a root directory. Records are plain
// files; containers are directories. All entries are created with restrictive
// permissions (0700 directories, 0600 files).
type Dir struct {
	root string
}

// NewDir creates a Store rooted at the given directory. The directory is
// created lazily on the first write.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the backing directory.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) path(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(name))
}

// Get returns the record contents, or ErrNotExist.
func (d *Dir) Get(name string) ([]byte, error) {
	data, err := os.ReadFile(d.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, fmt.Errorf("failed to read record %s: %w", name, err)
	}
	return data, nil
}

// Put atomically replaces the record by writing a temp file and renaming it
// over the target. Rename is atomic on the local filesystems this runs on,
// so a reader sees either the old record or the new one, never a mix.
func (d *Dir) Put(name string, data []byte) error {
	path := d.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write record %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp record: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace record %s: %w", name, err)
	}
	return nil
}

// Delete removes the record, ignoring absence.
func (d *Dir) Delete(name string) error {
	if err := os.Remove(d.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the record is present.
func (d *Dir) Exists(name string) (bool, error) {
	_, err := os.Stat(d.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat record %s: %w", name, err)
}

// CreateExclusive creates the container via os.Mkdir, which fails atomically
// when the target already exists. Exactly one concurrent caller wins.
func (d *Dir) CreateExclusive(name string) error {
	path := d.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Mkdir(path, 0700); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	return nil
}

// RemoveAll removes the record and any children, ignoring absence.
func (d *Dir) RemoveAll(name string) error {
	if err := os.RemoveAll(d.path(name)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}
