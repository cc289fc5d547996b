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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Both implementations must behave identically; run the contract suite
// against each.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"dir": NewDir(t.TempDir()),
		"mem": NewMem(),
	}
}

func TestStore_GetPutDelete(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get("agents.count")
			assert.ErrorIs(t, err, ErrNotExist)

			require.NoError(t, st.Put("agents.count", []byte("3\n")))
			data, err := st.Get("agents.count")
			require.NoError(t, err)
			assert.Equal(t, "3\n", string(data))

			require.NoError(t, st.Put("agents.count", []byte("4\n")))
			data, err = st.Get("agents.count")
			require.NoError(t, err)
			assert.Equal(t, "4\n", string(data))

			require.NoError(t, st.Delete("agents.count"))
			_, err = st.Get("agents.count")
			assert.ErrorIs(t, err, ErrNotExist)

			// Deleting an absent record is not an error.
			require.NoError(t, st.Delete("agents.count"))
		})
	}
}

func TestStore_Exists(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := st.Exists("server.state")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, st.Put("server.state", []byte("running:1:0")))
			ok, err = st.Exists("server.state")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_CreateExclusive(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.CreateExclusive("lock"))

			err := st.CreateExclusive("lock")
			assert.ErrorIs(t, err, ErrExists)

			ok, err := st.Exists("lock")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_ContainerChildren(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, st.CreateExclusive("lock"))
			require.NoError(t, st.Put("lock/owner", []byte("100:0:alice:devbox")))

			data, err := st.Get("lock/owner")
			require.NoError(t, err)
			assert.Equal(t, "100:0:alice:devbox", string(data))

			require.NoError(t, st.RemoveAll("lock"))

			_, err = st.Get("lock/owner")
			assert.ErrorIs(t, err, ErrNotExist)
			ok, err := st.Exists("lock")
			require.NoError(t, err)
			assert.False(t, ok)

			// The container can be recreated after removal.
			require.NoError(t, st.CreateExclusive("lock"))
		})
	}
}

func TestStore_CreateExclusiveOneWinner(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const contenders = 16

			var wg sync.WaitGroup
			wins := make(chan struct{}, contenders)
			for i := 0; i < contenders; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if st.CreateExclusive("lock") == nil {
						wins <- struct{}{}
					}
				}()
			}
			wg.Wait()
			close(wins)

			count := 0
			for range wins {
				count++
			}
			assert.Equal(t, 1, count, "exactly one contender must win the exclusive create")
		})
	}
}

func TestDir_PutIsAtomicReplace(t *testing.T) {
	root := t.TempDir()
	st := NewDir(root)

	require.NoError(t, st.Put("server.state", []byte("running:42:100")))

	// No temp files may be left behind after a successful Put.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "server.state", entries[0].Name())

	info, err := os.Stat(filepath.Join(root, "server.state"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode()&os.ModePerm)
}

func TestDir_CreatesRootLazily(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "coordination")
	st := NewDir(root)

	require.NoError(t, st.Put("agents.count", []byte("1\n")))

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDir_GetWrapsNotExist(t *testing.T) {
	st := NewDir(t.TempDir())
	_, err := st.Get("missing")
	assert.True(t, errors.Is(err, ErrNotExist))
}
