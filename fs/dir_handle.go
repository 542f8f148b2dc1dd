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

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
)

// dirHandle buffers the entries of a single opendir/readdir/closedir
// session. Because the directory cache has no notion of a stable cursor,
// rewinddir is detected the same way the kernel bridge expects: a ReadDir
// request with offset zero restarts the session from scratch.
type dirHandle struct {
	in fuseops.InodeID

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	entries []fuseutil.Dirent
}

func newDirHandle(in fuseops.InodeID) *dirHandle {
	return &dirHandle{in: in}
}

// fill populates the handle's buffered entries for the current ReadDir
// session. It is called once per rewind, not once per ReadDir call: the
// kernel bridge may ask for the listing in several Size-limited chunks.
func (dh *dirHandle) fill(entries []fuseutil.Dirent) {
	dh.mu.Lock()
	defer dh.mu.Unlock()
	dh.entries = entries
}

// ReadDir serves a single ReadDirOp out of the buffered entries, honoring
// the offset/size pagination contract: entries are numbered by their
// position in the buffered listing (offset 0 is implicitly "."), and a
// request for an offset past the end of the buffer returns EINVAL, since
// there is no way to support an arbitrary seekdir once a directory has been
// read and its membership may have changed.
func (dh *dirHandle) ReadDir(_ context.Context, op *fuseops.ReadDirOp) error {
	dh.mu.Lock()
	defer dh.mu.Unlock()

	index := int(op.Offset)
	if index > len(dh.entries) {
		return fuse.EINVAL
	}

	for i := index; i < len(dh.entries); i++ {
		e := dh.entries[i]
		e.Offset = fuseops.DirOffset(i + 1)

		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], e)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}

	return nil
}
