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

package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/devlease/devlease/internal/store"
)

// Watch delivers stop requests as they appear, without polling. It requires
// a filesystem-backed store; in-memory stores have no change events to
// subscribe to. The channel closes when ctx is cancelled or the underlying
// watcher fails.
//
// A request already pending when Watch starts is delivered immediately, so
// callers need no separate pre-check.
func (c *Coordinator) Watch(ctx context.Context) (<-chan StopRequest, error) {
	dir, ok := c.store.(*store.Dir)
	if !ok {
		return nil, fmt.Errorf("stop watch requires a filesystem-backed store")
	}

	// The store creates its root lazily; the watch needs it now.
	if err := os.MkdirAll(dir.Root(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir.Root(), err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(dir.Root()); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir.Root(), err)
	}

	target := filepath.Join(dir.Root(), filepath.FromSlash(c.record))
	requests := make(chan StopRequest, 1)

	go func() {
		defer close(requests)
		defer fsWatcher.Close()

		// The record may predate the watch.
		if req, ok := c.Request(); ok {
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if event.Name != target {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
					continue
				}
				req, ok := c.Request()
				if !ok {
					// Raced with a Clear, or the record is corrupt.
					continue
				}
				c.logger.Debug("stop request observed", "reason", req.Reason)
				select {
				case requests <- req:
				case <-ctx.Done():
					return
				}

			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				c.logger.Error("stop watch error", "error", err)

			case <-ctx.Done():
				return
			}
		}
	}()

	return requests, nil
}
