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
	"os"
	"path"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"

	"github.com/kimiai/ftpfuse/internal/remote"
)

// inode is one entry in the identifier table: the bijection between a
// remote path and a stable identifier, plus the bookkeeping needed to
// answer lookups without touching the remote server.
type inode struct {
	id         fuseops.InodeID
	parent     fuseops.InodeID
	basename   string
	remotePath string
	attrs      Attributes
}

// identTable allocates identifiers and maintains the path<->identifier
// bijection. The zero value is not usable; use newIdentTable.
type identTable struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	nextID fuseops.InodeID

	// GUARDED_BY(mu)
	byID map[fuseops.InodeID]*inode

	// GUARDED_BY(mu)
	byPath map[string]fuseops.InodeID
}

func newIdentTable() *identTable {
	t := &identTable{
		nextID: fuseops.RootInodeID + 1,
		byID:   make(map[fuseops.InodeID]*inode),
		byPath: make(map[string]fuseops.InodeID),
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t
}

// checkInvariants panics if the table's bookkeeping has diverged from the
// invariants this package relies on. It is meant to be called with mu held.
func (t *identTable) checkInvariants() {
	for p, id := range t.byPath {
		in, ok := t.byID[id]
		if !ok {
			panic("identTable: byPath entry with no matching byID entry")
		}
		if in.remotePath != p {
			panic("identTable: byPath/byID path mismatch")
		}
	}

	if in, ok := t.byID[fuseops.RootInodeID]; ok {
		if in.parent != fuseops.RootInodeID {
			panic("identTable: root is not its own parent")
		}
	}
}

func (t *identTable) lockAndCheck() {
	t.mu.Lock()
}

func (t *identTable) unlockAndCheck() {
	t.checkInvariants()
	t.mu.Unlock()
}

// insertRoot seeds the root inode. Called once, before the table is
// reachable from more than one goroutine.
func (t *identTable) insertRoot(attrs Attributes) *inode {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	root := &inode{
		id:         fuseops.RootInodeID,
		parent:     fuseops.RootInodeID,
		basename:   "/",
		remotePath: "/",
		attrs:      attrs,
	}
	t.byID[root.id] = root
	t.byPath["/"] = root.id
	return root
}

func (t *identTable) byIdentifier(id fuseops.InodeID) (*inode, bool) {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	in, ok := t.byID[id]
	return in, ok
}

func (t *identTable) byRemotePath(p string) (*inode, bool) {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	id, ok := t.byPath[p]
	if !ok {
		return nil, false
	}
	return t.byID[id], true
}

// getOrCreate returns the existing inode for entry's remote path, or
// allocates and inserts a new one as a child of parent.
func (t *identTable) getOrCreate(parent fuseops.InodeID, entry remote.Entry, uid, gid uint32, now func() time.Time) *inode {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	if id, ok := t.byPath[entry.Path]; ok {
		return t.byID[id]
	}

	id := t.nextID
	t.nextID++

	in := &inode{
		id:         id,
		parent:     parent,
		basename:   entry.Name,
		remotePath: entry.Path,
		attrs:      newAttributes(entry.Size, entry.IsDir, modeFromPermissions(entry.Permissions), uid, gid, now()),
	}
	t.byID[id] = in
	t.byPath[entry.Path] = id
	return in
}

// remove deletes the inode for id entirely, including its path mapping.
func (t *identTable) remove(id fuseops.InodeID) {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	in, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byPath, in.remotePath)
	delete(t.byID, id)
}

// rename rekeys the path mapping and mutates the inode in place to reflect
// its new location. It does not allocate a new identifier.
func (t *identTable) rename(id fuseops.InodeID, newParent fuseops.InodeID, newName, newPath string) {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	in, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byPath, in.remotePath)
	in.parent = newParent
	in.basename = newName
	in.remotePath = newPath
	t.byPath[newPath] = id
}

// setAttrs replaces the stored snapshot for id, if it still exists.
func (t *identTable) setAttrs(id fuseops.InodeID, attrs Attributes) {
	t.lockAndCheck()
	defer t.unlockAndCheck()

	if in, ok := t.byID[id]; ok {
		in.attrs = attrs
	}
}

// childPath joins a parent's remote path with a child basename, handling the
// root's trailing slash so paths never double up on "/".
func childPath(parentPath, name string) string {
	return path.Join(parentPath, name)
}

// modeFromPermissions extracts the low 9 permission bits from a parsed
// listing's Permissions field.
func modeFromPermissions(perm uint32) os.FileMode {
	return os.FileMode(perm & 0o777)
}
