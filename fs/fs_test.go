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
	"os"
	"testing"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/syncutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimiai/ftpfuse/clock"
	"github.com/kimiai/ftpfuse/internal/remote"
)

// newTestFileSystem builds a *fileSystem the same way NewServer does,
// without going through fuseutil.NewFileSystemServer, so tests can call the
// unexported op methods directly.
func newTestFileSystem(t *testing.T, r *remote.Fake) (*fileSystem, *clock.SimulatedClock) {
	t.Helper()

	sc := clock.NewSimulatedClock(time.Unix(1700000000, 0))

	fsys := &fileSystem{
		clock:      sc,
		remote:     r,
		uid:        1000,
		gid:        1000,
		ident:      newIdentTable(),
		attrs:      newAttrCache(sc),
		dirs:       newDirCache(sc, r),
		reads:      newReadCache(r),
		handles:    newHandleTable(),
		dirHandles: make(map[fuseops.HandleID]*dirHandle),
	}
	fsys.mu = syncutil.NewInvariantMutex(fsys.checkInvariants)

	root := newAttributes(0, true, 0o755, fsys.uid, fsys.gid, sc.Now())
	fsys.ident.insertRoot(root)
	fsys.attrs.put(fuseops.RootInodeID, root)

	return fsys, sc
}

func TestLookUpInodeFindsChild(t *testing.T) {
	r := remote.NewFake()
	r.PutFile("/foo.txt", []byte("hello"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "foo.txt"}
	require.NoError(t, fsys.LookUpInode(op))
	assert.EqualValues(t, 5, op.Entry.Attributes.Size)
}

func TestLookUpInodeMissingReturnsENOENT(t *testing.T) {
	r := remote.NewFake()
	fsys, _ := newTestFileSystem(t, r)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nope"}
	assert.Equal(t, fuse.ENOENT, fsys.LookUpInode(op))
}

func TestLookUpInodeRejectsTransientNames(t *testing.T) {
	r := remote.NewFake()
	r.PutFile("/.nfs00000001", []byte("x"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: ".nfs00000001"}
	assert.Equal(t, fuse.ENOENT, fsys.LookUpInode(op))
}

func TestMkDirThenLookUp(t *testing.T) {
	r := remote.NewFake()
	fsys, _ := newTestFileSystem(t, r)

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "sub", Mode: os.ModeDir | 0o755}
	require.NoError(t, fsys.MkDir(mkdirOp))
	assert.True(t, mkdirOp.Entry.Attributes.Mode.IsDir())

	isDir, err := r.IsDir(context.Background(), "/sub")
	require.NoError(t, err)
	assert.True(t, isDir)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "sub"}
	require.NoError(t, fsys.LookUpInode(lookupOp))
	assert.Equal(t, mkdirOp.Entry.Child, lookupOp.Entry.Child)
}

func TestCreateFileReturnsWritableHandle(t *testing.T) {
	r := remote.NewFake()
	fsys, _ := newTestFileSystem(t, r)

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "new.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(createOp))
	require.NotZero(t, createOp.Handle)

	writeOp := &fuseops.WriteFileOp{Handle: createOp.Handle, Data: []byte("payload"), Offset: 0}
	require.NoError(t, fsys.WriteFile(writeOp))

	flushOp := &fuseops.FlushFileOp{Handle: createOp.Handle}
	require.NoError(t, fsys.FlushFile(flushOp))

	stored, err := r.Retrieve(context.Background(), "/new.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(stored))
}

func TestWriteFileWithoutWriteBufferFails(t *testing.T) {
	r := remote.NewFake()
	r.PutFile("/ro.txt", []byte("x"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "ro.txt"}
	require.NoError(t, fsys.LookUpInode(lookupOp))

	openOp := &fuseops.OpenFileOp{Inode: lookupOp.Entry.Child, Flags: os.O_RDONLY}
	require.NoError(t, fsys.OpenFile(openOp))

	writeOp := &fuseops.WriteFileOp{Handle: openOp.Handle, Data: []byte("nope")}
	assert.Equal(t, fuse.EIO, fsys.WriteFile(writeOp))
}

func TestReadFileServesReadCacheOnHit(t *testing.T) {
	r := remote.NewFake()
	r.PutFile("/a.txt", []byte("0123456789"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "a.txt"}
	require.NoError(t, fsys.LookUpInode(lookupOp))

	openOp := &fuseops.OpenFileOp{Inode: lookupOp.Entry.Child, Flags: os.O_RDONLY}
	require.NoError(t, fsys.OpenFile(openOp))

	readOp := &fuseops.ReadFileOp{Handle: openOp.Handle, Inode: lookupOp.Entry.Child, Offset: 3, Size: 4}
	require.NoError(t, fsys.ReadFile(readOp))
	assert.Equal(t, "3456", string(readOp.Data))

	// Change the remote body directly: the read cache must still serve the
	// stale value, since nothing evicted it.
	r.PutFile("/a.txt", []byte("zzzzzzzzzz"), 0o644)
	readOp2 := &fuseops.ReadFileOp{Handle: openOp.Handle, Inode: lookupOp.Entry.Child, Offset: 0, Size: 1}
	require.NoError(t, fsys.ReadFile(readOp2))
	assert.Equal(t, "0", string(readOp2.Data))
}

func TestReadFilePastEOFReturnsEmptySlice(t *testing.T) {
	r := remote.NewFake()
	r.PutFile("/short.txt", []byte("ab"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "short.txt"}
	require.NoError(t, fsys.LookUpInode(lookupOp))
	openOp := &fuseops.OpenFileOp{Inode: lookupOp.Entry.Child, Flags: os.O_RDONLY}
	require.NoError(t, fsys.OpenFile(openOp))

	readOp := &fuseops.ReadFileOp{Handle: openOp.Handle, Inode: lookupOp.Entry.Child, Offset: 10, Size: 4}
	require.NoError(t, fsys.ReadFile(readOp))
	assert.Empty(t, readOp.Data)
}

func TestRmDirRefusesNonEmpty(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/parent", 0o755)
	r.PutFile("/parent/child.txt", []byte("x"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "parent"}
	require.NoError(t, fsys.LookUpInode(lookupOp))

	rmOp := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "parent"}
	assert.Equal(t, fuse.ENOTEMPTY, fsys.RmDir(rmOp))
}

func TestRmDirRemovesEmptyDir(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/empty", 0o755)
	fsys, _ := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "empty"}
	require.NoError(t, fsys.LookUpInode(lookupOp))

	rmOp := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "empty"}
	require.NoError(t, fsys.RmDir(rmOp))

	exists, err := r.Exists(context.Background(), "/empty")
	require.NoError(t, err)
	assert.False(t, exists)

	// The identifier must be gone too, so a later lookup finds nothing cached.
	secondLookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "empty"}
	assert.Equal(t, fuse.ENOENT, fsys.LookUpInode(secondLookup))
}

func TestUnlinkOfMissingNameIsHarmless(t *testing.T) {
	r := remote.NewFake()
	fsys, _ := newTestFileSystem(t, r)

	op := &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "ghost.txt"}
	assert.NoError(t, fsys.Unlink(op))
}

func TestRenameMovesIdentifierAndInvalidatesBothParents(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/src", 0o755)
	r.PutDir("/dst", 0o755)
	r.PutFile("/src/a.txt", []byte("data"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	srcLookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "src"}
	require.NoError(t, fsys.LookUpInode(srcLookup))
	dstLookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "dst"}
	require.NoError(t, fsys.LookUpInode(dstLookup))

	fileLookup := &fuseops.LookUpInodeOp{Parent: srcLookup.Entry.Child, Name: "a.txt"}
	require.NoError(t, fsys.LookUpInode(fileLookup))

	renameOp := &fuseops.RenameOp{
		OldParent: srcLookup.Entry.Child,
		OldName:   "a.txt",
		NewParent: dstLookup.Entry.Child,
		NewName:   "b.txt",
	}
	require.NoError(t, fsys.Rename(renameOp))

	_, srcCached := fsys.dirs.lookup("/src")
	assert.False(t, srcCached, "rename should invalidate the old parent's listing")
	_, dstCached := fsys.dirs.lookup("/dst")
	assert.False(t, dstCached, "rename should invalidate the new parent's listing")

	exists, err := r.Exists(context.Background(), "/src/a.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	data, err := r.Retrieve(context.Background(), "/dst/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	secondLookup := &fuseops.LookUpInodeOp{Parent: dstLookup.Entry.Child, Name: "b.txt"}
	require.NoError(t, fsys.LookUpInode(secondLookup))
	assert.Equal(t, fileLookup.Entry.Child, secondLookup.Entry.Child,
		"rename should reuse the old identifier instead of allocating a new one")
}

func TestReadDirListsChildrenAndSkipsTransientNames(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/d", 0o755)
	r.PutFile("/d/one.txt", []byte("1"), 0o644)
	r.PutFile("/d/.nfs00000002", []byte("x"), 0o644)
	r.PutDir("/d/sub", 0o755)
	fsys, _ := newTestFileSystem(t, r)

	dirLookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "d"}
	require.NoError(t, fsys.LookUpInode(dirLookup))

	openOp := &fuseops.OpenDirOp{Inode: dirLookup.Entry.Child}
	require.NoError(t, fsys.OpenDir(openOp))

	buf := make([]byte, 4096)
	readOp := &fuseops.ReadDirOp{Inode: dirLookup.Entry.Child, Handle: openOp.Handle, Offset: 0, Dst: buf}
	require.NoError(t, fsys.ReadDir(readOp))
	assert.NotZero(t, readOp.BytesRead)

	dh := fsys.dirHandles[openOp.Handle]
	names := make([]string, len(dh.entries))
	for i, e := range dh.entries {
		names[i] = e.Name
	}
	assert.Equal(t, []string{".", "..", "one.txt", "sub"}, names)

	releaseOp := &fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}
	assert.NoError(t, fsys.ReleaseDirHandle(releaseOp))
}

func TestLookUpInodeDotAndDotDot(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/d", 0o755)
	fsys, _ := newTestFileSystem(t, r)

	dirLookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "d"}
	require.NoError(t, fsys.LookUpInode(dirLookup))

	dotOp := &fuseops.LookUpInodeOp{Parent: dirLookup.Entry.Child, Name: "."}
	require.NoError(t, fsys.LookUpInode(dotOp))
	assert.Equal(t, dirLookup.Entry.Child, dotOp.Entry.Child)

	dotDotOp := &fuseops.LookUpInodeOp{Parent: dirLookup.Entry.Child, Name: ".."}
	require.NoError(t, fsys.LookUpInode(dotDotOp))
	assert.Equal(t, fuseops.RootInodeID, dotDotOp.Entry.Child)

	rootDotDotOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: ".."}
	require.NoError(t, fsys.LookUpInode(rootDotDotOp))
	assert.Equal(t, fuseops.RootInodeID, rootDotDotOp.Entry.Child)
}

// Transient debris alone must not trip the in-core emptiness pre-check: the
// directory is only truly non-empty, per that check, once it holds a
// non-transient entry. The remote server still enforces its own non-empty
// rejection independently, so the Fake here still refuses the Rmdir RPC
// itself, but it must fail with EIO from that remote call, never with the
// pre-check's own ENOTEMPTY.
func TestRmDirPreCheckIgnoresTransientEntries(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/parent", 0o755)
	r.PutFile("/parent/.DS_Store", []byte("x"), 0o644)
	fsys, _ := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "parent"}
	require.NoError(t, fsys.LookUpInode(lookupOp))

	rmOp := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "parent"}
	assert.NotEqual(t, fuse.ENOTEMPTY, fsys.RmDir(rmOp))
}

func TestGetInodeAttributesRefreshesFileSizeOnMiss(t *testing.T) {
	r := remote.NewFake()
	r.PutFile("/grows.txt", []byte("12345"), 0o644)
	fsys, sc := newTestFileSystem(t, r)

	lookupOp := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "grows.txt"}
	require.NoError(t, fsys.LookUpInode(lookupOp))

	r.PutFile("/grows.txt", []byte("1234567890"), 0o644)

	// Force the attribute cache entry to expire so GetInodeAttributes has to
	// refresh the size with a direct probe.
	sc.AdvanceTime(2 * time.Minute)

	attrOp := &fuseops.GetInodeAttributesOp{Inode: lookupOp.Entry.Child}
	require.NoError(t, fsys.GetInodeAttributes(attrOp))
	assert.EqualValues(t, 10, attrOp.Attributes.Size)
}

func TestReleaseFileHandleFlushesDirtyBufferAndEvictsLastReader(t *testing.T) {
	r := remote.NewFake()
	fsys, _ := newTestFileSystem(t, r)

	createOp := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "w.txt", Mode: 0o644}
	require.NoError(t, fsys.CreateFile(createOp))

	writeOp := &fuseops.WriteFileOp{Handle: createOp.Handle, Data: []byte("xyz")}
	require.NoError(t, fsys.WriteFile(writeOp))

	releaseOp := &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}
	require.NoError(t, fsys.ReleaseFileHandle(releaseOp))

	data, err := r.Retrieve(context.Background(), "/w.txt")
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))

	_, cached := fsys.reads.bodies[createOp.Entry.Child]
	assert.False(t, cached, "releasing the last handle should evict the read cache entry")
}

func TestSliceAt(t *testing.T) {
	body := []byte("0123456789")

	cases := []struct {
		offset int64
		size   int
		want   string
	}{
		{0, 4, "0123"},
		{8, 4, "89"},
		{10, 4, ""},
		{20, 4, ""},
	}

	for _, c := range cases {
		got := sliceAt(body, c.offset, c.size)
		assert.Equal(t, c.want, string(got))
	}
}

func TestCheckInvariantsPanicsOnNilDirHandle(t *testing.T) {
	r := remote.NewFake()
	fsys, _ := newTestFileSystem(t, r)
	fsys.dirHandles[1] = nil

	assert.Panics(t, fsys.checkInvariants)
}
