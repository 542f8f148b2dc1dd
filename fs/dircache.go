// Copyright 2025 Google LLC
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

package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/jacobsa/syncutil"

	"github.com/kimiai/ftpfuse/clock"
	"github.com/kimiai/ftpfuse/internal/remote"
)

const dirCacheTTL = 60 * time.Second

// reconnectBackoff is the pause between a failed listing and its retry, so a
// control connection that just dropped has a moment to settle before the
// reconnect is attempted.
const reconnectBackoff = 250 * time.Millisecond

type dirCacheEntry struct {
	listing  []remote.Entry
	insertAt time.Time
}

// dirCache accelerates listings of remote directories. A miss triggers
// exactly one ListDir call, with one reconnect-and-retry on failure: this is
// the only remote operation in the dispatcher with automatic recovery.
type dirCache struct {
	clock  clock.Clock
	remote remote.Client

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	entries map[string]dirCacheEntry
}

func newDirCache(c clock.Clock, r remote.Client) *dirCache {
	return &dirCache{
		clock:   c,
		remote:  r,
		entries: make(map[string]dirCacheEntry),
	}
}

func (c *dirCache) lookup(path string) ([]remote.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.insertAt) >= dirCacheTTL {
		return nil, false
	}
	return e.listing, true
}

func (c *dirCache) store(path string, listing []remote.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = dirCacheEntry{listing: listing, insertAt: c.clock.Now()}
}

// invalidate unconditionally drops the cached listing for path.
func (c *dirCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
}

// list returns the listing for path, consulting the remote server on a
// cache miss. No lock is held while the remote call is in flight.
func (c *dirCache) list(ctx context.Context, path string) ([]remote.Entry, error) {
	if listing, ok := c.lookup(path); ok {
		return listing, nil
	}

	listing, err := c.remote.ListDir(ctx, path)
	if err != nil {
		select {
		case <-c.clock.After(reconnectBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if rerr := c.remote.Reconnect(ctx); rerr != nil {
			return nil, fmt.Errorf("remote: reconnect after failed listing of %q: %w", path, rerr)
		}
		listing, err = c.remote.ListDir(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("remote: list %q: %w", path, err)
		}
	}

	c.store(path, listing)
	return listing, nil
}
