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

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"

	"github.com/kimiai/ftpfuse/internal/remote"
)

// readCache holds whole-file bodies keyed by identifier. There is no TTL:
// entries live until an explicit eviction (handle release with no other
// references, or unlink of the identifier). A write-back replaces the entry
// with the written bytes rather than evicting it.
type readCache struct {
	remote remote.Client

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	bodies map[fuseops.InodeID][]byte
}

func newReadCache(r remote.Client) *readCache {
	return &readCache{
		remote: r,
		bodies: make(map[fuseops.InodeID][]byte),
	}
}

// load returns the cached body for id, retrieving it from the remote server
// on a miss.
func (c *readCache) load(ctx context.Context, id fuseops.InodeID, remotePath string) ([]byte, error) {
	c.mu.Lock()
	body, ok := c.bodies[id]
	c.mu.Unlock()
	if ok {
		return body, nil
	}

	body, err := c.remote.Retrieve(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("remote: retrieve %q: %w", remotePath, err)
	}

	c.mu.Lock()
	c.bodies[id] = body
	c.mu.Unlock()
	return body, nil
}

// set unconditionally replaces the cached body for id, mirroring a write
// buffer's contents so subsequent reads observe it without a round trip.
func (c *readCache) set(id fuseops.InodeID, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := make([]byte, len(body))
	copy(cp, body)
	c.bodies[id] = cp
}

// evict drops the cached body for id, if any.
func (c *readCache) evict(id fuseops.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.bodies, id)
}
