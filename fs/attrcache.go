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
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"

	"github.com/kimiai/ftpfuse/clock"
)

const attrCacheTTL = 120 * time.Second

type attrCacheEntry struct {
	attrs    Attributes
	insertAt time.Time
}

// attrCache is the identifier -> attribute snapshot accelerator. Entries
// older than attrCacheTTL are treated as misses.
type attrCache struct {
	clock clock.Clock

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	entries map[fuseops.InodeID]attrCacheEntry
}

func newAttrCache(c clock.Clock) *attrCache {
	return &attrCache{
		clock:   c,
		entries: make(map[fuseops.InodeID]attrCacheEntry),
	}
}

// get returns the cached snapshot for id, if present and fresh.
func (c *attrCache) get(id fuseops.InodeID) (Attributes, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return Attributes{}, false
	}
	if c.clock.Now().Sub(e.insertAt) >= attrCacheTTL {
		return Attributes{}, false
	}
	return e.attrs, true
}

// put unconditionally replaces the cached entry for id.
func (c *attrCache) put(id fuseops.InodeID, attrs Attributes) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = attrCacheEntry{attrs: attrs, insertAt: c.clock.Now()}
}

// evict drops the cached entry for id, if any.
func (c *attrCache) evict(id fuseops.InodeID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}
