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
)

// writeBuffer accumulates writes for a single open-for-write handle until
// they are pushed to the remote server on flush, fsync, or release.
type writeBuffer struct {
	data       []byte
	dirty      bool
	lastWrite  time.Time
}

// openHandle is one entry in the open-handle table.
type openHandle struct {
	inode fuseops.InodeID
	write *writeBuffer // nil unless the handle was opened with write intent
}

// handleTable tracks open file handles. Directory handles
// are tracked by *dirHandle directly; this table only ever holds file
// handles, since that's the only kind with write-back state to manage.
type handleTable struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	nextID fuseops.HandleID

	// GUARDED_BY(mu)
	handles map[fuseops.HandleID]*openHandle

	// GUARDED_BY(mu)
	// refs counts live handles per inode, so release can tell when it was
	// the last handle on an identifier and evict the read cache.
	refs map[fuseops.InodeID]int
}

func newHandleTable() *handleTable {
	return &handleTable{
		nextID:  1,
		handles: make(map[fuseops.HandleID]*openHandle),
		refs:    make(map[fuseops.InodeID]int),
	}
}

// writeIntent reports whether the low two bits of an open(2) flags value
// request write access, matching O_WRONLY (1) or O_RDWR (2).
func writeIntent(flags uint32) bool {
	const accessModeMask = 0o3
	mode := flags & accessModeMask
	return mode == 1 || mode == 2
}

// open allocates a new handle for id. If flags indicates write intent, an
// empty, non-dirty write buffer is attached.
func (t *handleTable) open(id fuseops.InodeID, flags uint32) fuseops.HandleID {
	t.mu.Lock()
	defer t.mu.Unlock()

	hid := t.nextID
	t.nextID++

	h := &openHandle{inode: id}
	if writeIntent(flags) {
		h.write = &writeBuffer{}
	}

	t.handles[hid] = h
	t.refs[id]++
	return hid
}

func (t *handleTable) get(hid fuseops.HandleID) (*openHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[hid]
	return h, ok
}

// release removes hid from the table and reports whether it was the last
// handle referencing its inode.
func (t *handleTable) release(hid fuseops.HandleID) (id fuseops.InodeID, lastRef bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[hid]
	if !ok {
		return 0, false, false
	}
	delete(t.handles, hid)

	id = h.inode
	t.refs[id]--
	lastRef = t.refs[id] <= 0
	if lastRef {
		delete(t.refs, id)
	}
	return id, lastRef, true
}

// applyWrite extends the buffer with zero fill if necessary and overwrites the
// requested range. It returns false if the handle has no write buffer attached.
func (h *openHandle) applyWrite(offset int64, data []byte, now time.Time) bool {
	if h.write == nil {
		return false
	}

	end := int(offset) + len(data)
	if end > len(h.write.data) {
		grown := make([]byte, end)
		copy(grown, h.write.data)
		h.write.data = grown
	}
	copy(h.write.data[offset:end], data)
	h.write.dirty = true
	h.write.lastWrite = now
	return true
}
