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

// Package fs implements the kernel-bridge side of the filesystem: it
// translates fuseops requests into calls against the identifier table, the
// three caches, the open-handle table, and a remote.Client, without ever
// knowing anything about the wire protocol spoken to the remote server.
package fs

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"

	"github.com/kimiai/ftpfuse/clock"
	"github.com/kimiai/ftpfuse/internal/namefilter"
	"github.com/kimiai/ftpfuse/internal/remote"
)

// ServerConfig carries everything NewServer needs to build a fuse.Server.
type ServerConfig struct {
	// Clock is consulted for cache TTL arithmetic and for timestamping newly
	// observed attributes.
	Clock clock.Clock

	// Remote is the collaborator used to talk to the FTP server. Its Connect
	// method is not called by NewServer; the caller must have already
	// connected before the server is mounted.
	Remote remote.Client

	// Uid and Gid are stamped onto every inode's attributes, since the
	// remote server has no notion of local users.
	Uid uint32
	Gid uint32

	// ExitOnInvariantViolation makes checkInvariants call os.Exit instead of
	// panicking when the in-memory bookkeeping has diverged from what this
	// package relies on. Panicking is preferable under test, so this
	// defaults to false.
	ExitOnInvariantViolation bool
}

// fileSystem is the receiver for every fuseops method. Its own mutex guards
// nothing but the directory-handle map directly; the heavier bookkeeping
// lives in the identTable, attrCache, dirCache, and readCache, each with its
// own lock, so that a slow remote call never blocks an unrelated lookup.
type fileSystem struct {
	clock  clock.Clock
	remote remote.Client

	uid uint32
	gid uint32

	ident   *identTable
	attrs   *attrCache
	dirs    *dirCache
	reads   *readCache
	handles *handleTable

	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	dirHandles map[fuseops.HandleID]*dirHandle

	exitOnInvariantViolation bool
}

// NewServer builds a fuse.Server that implements the translation layer
// against cfg.Remote, after bootstrapping the root inode by probing the
// remote server's root directory.
func NewServer(ctx context.Context, cfg *ServerConfig) (server fuse.Server, err error) {
	now := cfg.Clock.Now()

	isDir, err := cfg.Remote.IsDir(ctx, "/")
	if err != nil {
		err = fmt.Errorf("remote: probe root: %w", err)
		return
	}
	if !isDir {
		err = fmt.Errorf("remote root %q is not a directory", "/")
		return
	}

	fs := &fileSystem{
		clock:                    cfg.Clock,
		remote:                   cfg.Remote,
		uid:                      cfg.Uid,
		gid:                      cfg.Gid,
		ident:                    newIdentTable(),
		attrs:                    newAttrCache(cfg.Clock),
		dirs:                     newDirCache(cfg.Clock, cfg.Remote),
		reads:                    newReadCache(cfg.Remote),
		handles:                  newHandleTable(),
		dirHandles:               make(map[fuseops.HandleID]*dirHandle),
		exitOnInvariantViolation: cfg.ExitOnInvariantViolation,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	rootAttrs := newAttributes(0, true, 0o755, cfg.Uid, cfg.Gid, now)
	fs.ident.insertRoot(rootAttrs)
	fs.attrs.put(fuseops.RootInodeID, rootAttrs)

	server = fuseutil.NewFileSystemServer(fs)
	return
}

func (fs *fileSystem) checkInvariants() {
	if fs.exitOnInvariantViolation {
		defer func() {
			if r := recover(); r != nil {
				os.Exit(1)
			}
		}()
	}

	for hid, dh := range fs.dirHandles {
		if dh == nil {
			panic(fmt.Sprintf("fileSystem: nil directory handle %d", hid))
		}
	}
}

////////////////////////////////////////////////////////////////////////
// Lookups
////////////////////////////////////////////////////////////////////////

// resolveChild finds or creates the inode for name under parent, consulting
// the directory cache for the listing and the identifier table for the
// bijection. `.` and `..` are resolved locally from the identifier table
// without ever touching the directory cache; other transient names are
// rejected before any remote work happens.
func (fs *fileSystem) resolveChild(ctx context.Context, parentID fuseops.InodeID, name string) (*inode, error) {
	parent, ok := fs.ident.byIdentifier(parentID)
	if !ok {
		return nil, fuse.ENOENT
	}

	if name == "." {
		return parent, nil
	}
	if name == ".." {
		grandparent, ok := fs.ident.byIdentifier(parent.parent)
		if !ok {
			return nil, fuse.ENOENT
		}
		return grandparent, nil
	}

	if namefilter.IsTransient(name) {
		return nil, fuse.ENOENT
	}

	if known, ok := fs.ident.byRemotePath(childPath(parent.remotePath, name)); ok {
		if _, fresh := fs.attrs.get(known.id); fresh {
			return known, nil
		}
	}

	listing, err := fs.dirs.list(ctx, parent.remotePath)
	if err != nil {
		return nil, fuse.EIO
	}

	for _, e := range listing {
		if e.Name == name {
			child := fs.ident.getOrCreate(parentID, e, fs.uid, fs.gid, fs.clock.Now)
			fs.attrs.put(child.id, child.attrs)
			return child, nil
		}
	}

	return nil, fuse.ENOENT
}

func (fs *fileSystem) childEntry(in *inode) fuseops.ChildInodeEntry {
	now := fs.clock.Now()
	return fuseops.ChildInodeEntry{
		Child:                in.id,
		Attributes:           toFuseAttrs(in.attrs),
		AttributesExpiration: now.Add(kernelAttributeTTL),
		EntryExpiration:      now.Add(kernelAttributeTTL),
	}
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) Init(op *fuseops.InitOp) (err error) {
	return
}

func (fs *fileSystem) LookUpInode(op *fuseops.LookUpInodeOp) (err error) {
	child, err := fs.resolveChild(op.Context(), op.Parent, op.Name)
	if err != nil {
		return
	}
	op.Entry = fs.childEntry(child)
	return
}

func (fs *fileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) (err error) {
	if attrs, ok := fs.attrs.get(op.Inode); ok {
		op.Attributes = toFuseAttrs(attrs)
		op.AttributesExpiration = fs.clock.Now().Add(kernelAttributeTTL)
		return
	}

	in, ok := fs.ident.byIdentifier(op.Inode)
	if !ok {
		err = fuse.ENOENT
		return
	}

	// A miss on a file's attributes means its size may have changed
	// remotely; refresh it with a direct size probe rather than a full
	// directory listing.
	if in.attrs.Kind == KindFile {
		size, serr := fs.remote.Size(op.Context(), in.remotePath)
		if serr == nil {
			in.attrs.Size = size
			in.attrs.Blocks = blockCount(size)
		}
	}

	fs.ident.setAttrs(in.id, in.attrs)
	fs.attrs.put(in.id, in.attrs)

	op.Attributes = toFuseAttrs(in.attrs)
	op.AttributesExpiration = fs.clock.Now().Add(kernelAttributeTTL)
	return
}

// SetInodeAttributes only mutates the in-memory snapshot: there is no
// remote chmod/chown/truncate-in-place analogue, so changes here are
// visible locally until the inode is evicted but are never pushed upstream.
func (fs *fileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) (err error) {
	in, ok := fs.ident.byIdentifier(op.Inode)
	if !ok {
		err = fuse.ENOENT
		return
	}

	attrs := in.attrs
	if op.Size != nil {
		attrs.Size = *op.Size
		attrs.Blocks = blockCount(attrs.Size)
	}
	if op.Mode != nil {
		attrs.Mode = *op.Mode & 0o777
	}
	if op.Atime != nil {
		attrs.Atime = *op.Atime
	}
	if op.Mtime != nil {
		attrs.Mtime = *op.Mtime
	}

	fs.ident.setAttrs(in.id, attrs)
	fs.attrs.put(in.id, attrs)

	op.Attributes = toFuseAttrs(attrs)
	op.AttributesExpiration = fs.clock.Now().Add(kernelAttributeTTL)
	return
}

// ForgetInode is a no-op: identifiers and their attributes live in the
// tables for the lifetime of the process, not the kernel's lookup count.
func (fs *fileSystem) ForgetInode(op *fuseops.ForgetInodeOp) (err error) {
	return
}

////////////////////////////////////////////////////////////////////////
// Creation and removal
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) MkDir(op *fuseops.MkDirOp) (err error) {
	if namefilter.IsTransient(op.Name) {
		err = fuse.ENOSYS
		return
	}

	parent, ok := fs.ident.byIdentifier(op.Parent)
	if !ok {
		err = fuse.ENOENT
		return
	}

	path := childPath(parent.remotePath, op.Name)
	if err = fs.remote.Mkdir(op.Context(), path); err != nil {
		err = fuse.EIO
		return
	}

	fs.dirs.invalidate(parent.remotePath)

	entry := remote.Entry{Name: op.Name, Path: path, IsDir: true, Permissions: uint32(op.Mode.Perm())}
	child := fs.ident.getOrCreate(op.Parent, entry, fs.uid, fs.gid, fs.clock.Now)
	fs.attrs.put(child.id, child.attrs)

	op.Entry = fs.childEntry(child)
	return
}

// CreateFile stores an empty file remotely and returns a handle with an
// attached, empty write buffer directly: there is no separate OpenFile call
// from the kernel after a successful create.
func (fs *fileSystem) CreateFile(op *fuseops.CreateFileOp) (err error) {
	if namefilter.IsTransient(op.Name) {
		err = fuse.ENOSYS
		return
	}

	parent, ok := fs.ident.byIdentifier(op.Parent)
	if !ok {
		err = fuse.ENOENT
		return
	}

	path := childPath(parent.remotePath, op.Name)
	if err = fs.remote.Store(op.Context(), path, nil); err != nil {
		err = fuse.EIO
		return
	}

	fs.dirs.invalidate(parent.remotePath)

	entry := remote.Entry{Name: op.Name, Path: path, IsDir: false, Permissions: uint32(op.Mode.Perm())}
	child := fs.ident.getOrCreate(op.Parent, entry, fs.uid, fs.gid, fs.clock.Now)
	fs.attrs.put(child.id, child.attrs)
	fs.reads.set(child.id, nil)

	op.Entry = fs.childEntry(child)
	op.Handle = fs.handles.open(child.id, uint32(os.O_RDWR))
	return
}

// RmDir requires the child to be empty, checked against the in-core
// directory cache (forcing a fresh listing on a cache miss) rather than a
// dedicated remote emptiness check.
func (fs *fileSystem) RmDir(op *fuseops.RmDirOp) (err error) {
	parent, ok := fs.ident.byIdentifier(op.Parent)
	if !ok {
		err = fuse.ENOENT
		return
	}

	path := childPath(parent.remotePath, op.Name)

	listing, lerr := fs.dirs.list(op.Context(), path)
	if lerr == nil {
		for _, e := range listing {
			if !namefilter.IsTransient(e.Name) {
				err = fuse.ENOTEMPTY
				return
			}
		}
	}

	if err = fs.remote.Rmdir(op.Context(), path); err != nil {
		err = fuse.EIO
		return
	}

	fs.dirs.invalidate(parent.remotePath)
	fs.dirs.invalidate(path)

	if child, ok := fs.ident.byRemotePath(path); ok {
		fs.ident.remove(child.id)
		fs.attrs.evict(child.id)
	}

	return
}

// Unlink succeeds without remote effect for transient names and for names
// that no longer exist remotely, matching the expectation that removing
// debris the filesystem never materialized is always harmless.
func (fs *fileSystem) Unlink(op *fuseops.UnlinkOp) (err error) {
	if namefilter.IsTransient(op.Name) {
		return
	}

	parent, ok := fs.ident.byIdentifier(op.Parent)
	if !ok {
		err = fuse.ENOENT
		return
	}

	path := childPath(parent.remotePath, op.Name)

	if child, ok := fs.ident.byRemotePath(path); ok {
		fs.ident.remove(child.id)
		fs.attrs.evict(child.id)
		fs.reads.evict(child.id)
	}
	fs.dirs.invalidate(parent.remotePath)

	exists, eerr := fs.remote.Exists(op.Context(), path)
	if eerr == nil && !exists {
		return
	}

	if err = fs.remote.Delete(op.Context(), path); err != nil {
		err = fuse.EIO
		return
	}

	return
}

func (fs *fileSystem) Rename(op *fuseops.RenameOp) (err error) {
	oldParent, ok := fs.ident.byIdentifier(op.OldParent)
	if !ok {
		err = fuse.ENOENT
		return
	}
	newParent, ok := fs.ident.byIdentifier(op.NewParent)
	if !ok {
		err = fuse.ENOENT
		return
	}

	oldPath := childPath(oldParent.remotePath, op.OldName)
	newPath := childPath(newParent.remotePath, op.NewName)

	if err = fs.remote.Rename(op.Context(), oldPath, newPath); err != nil {
		err = fuse.EIO
		return
	}

	fs.dirs.invalidate(oldParent.remotePath)
	fs.dirs.invalidate(newParent.remotePath)

	if child, ok := fs.ident.byRemotePath(oldPath); ok {
		fs.ident.rename(child.id, op.NewParent, op.NewName, newPath)
	}

	return
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) OpenDir(op *fuseops.OpenDirOp) (err error) {
	in, ok := fs.ident.byIdentifier(op.Inode)
	if !ok {
		err = fuse.ENOENT
		return
	}
	if in.attrs.Kind != KindDir {
		err = syscall.ENOTDIR
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	hid := fuseops.HandleID(len(fs.dirHandles) + 1)
	for {
		if _, taken := fs.dirHandles[hid]; !taken {
			break
		}
		hid++
	}

	fs.dirHandles[hid] = newDirHandle(op.Inode)
	op.Handle = hid
	return
}

func (fs *fileSystem) ReadDir(op *fuseops.ReadDirOp) (err error) {
	fs.mu.Lock()
	dh, ok := fs.dirHandles[op.Handle]
	fs.mu.Unlock()
	if !ok {
		err = fuse.EIO
		return
	}

	if op.Offset == 0 {
		in, ok := fs.ident.byIdentifier(op.Inode)
		if !ok {
			err = fuse.ENOENT
			return
		}

		listing, lerr := fs.dirs.list(op.Context(), in.remotePath)
		if lerr != nil {
			err = fuse.EIO
			return
		}

		entries := make([]fuseutil.Dirent, 0, len(listing)+2)
		entries = append(entries,
			fuseutil.Dirent{Name: ".", Type: fuseutil.DT_Directory},
			fuseutil.Dirent{Name: "..", Type: fuseutil.DT_Directory},
		)
		for _, e := range listing {
			if namefilter.IsTransient(e.Name) {
				continue
			}
			child := fs.ident.getOrCreate(op.Inode, e, fs.uid, fs.gid, fs.clock.Now)
			fs.attrs.put(child.id, child.attrs)

			typ := fuseutil.DT_File
			if e.IsDir {
				typ = fuseutil.DT_Directory
			}
			entries = append(entries, fuseutil.Dirent{Name: e.Name, Type: typ})
		}

		dh.fill(entries)
	}

	err = dh.ReadDir(op.Context(), op)
	return
}

func (fs *fileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	delete(fs.dirHandles, op.Handle)
	return
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) OpenFile(op *fuseops.OpenFileOp) (err error) {
	in, ok := fs.ident.byIdentifier(op.Inode)
	if !ok {
		err = fuse.ENOENT
		return
	}
	if in.attrs.Kind != KindFile {
		err = syscall.EISDIR
		return
	}

	op.Handle = fs.handles.open(op.Inode, uint32(op.Flags))
	return
}

func (fs *fileSystem) ReadFile(op *fuseops.ReadFileOp) (err error) {
	in, ok := fs.ident.byIdentifier(op.Inode)
	if !ok {
		err = fuse.ENOENT
		return
	}
	if in.attrs.Kind != KindFile {
		err = syscall.EISDIR
		return
	}

	if h, ok := fs.handles.get(op.Handle); ok && h.write != nil && h.write.dirty {
		op.Data = sliceAt(h.write.data, op.Offset, op.Size)
		return
	}

	body, rerr := fs.reads.load(op.Context(), op.Inode, in.remotePath)
	if rerr != nil {
		err = fuse.EIO
		return
	}

	op.Data = sliceAt(body, op.Offset, op.Size)
	return
}

// sliceAt returns up to size bytes of body starting at offset, or nil past
// EOF, matching the contract that a short read with no error signals EOF.
func sliceAt(body []byte, offset int64, size int) []byte {
	if offset >= int64(len(body)) {
		return nil
	}
	end := offset + int64(size)
	if end > int64(len(body)) {
		end = int64(len(body))
	}
	return body[offset:end]
}

func (fs *fileSystem) WriteFile(op *fuseops.WriteFileOp) (err error) {
	h, ok := fs.handles.get(op.Handle)
	if !ok || h.write == nil {
		err = fuse.EIO
		return
	}

	h.applyWrite(op.Offset, op.Data, fs.clock.Now())
	fs.reads.set(h.inode, h.write.data)

	if in, ok := fs.ident.byIdentifier(h.inode); ok {
		attrs := in.attrs
		if newSize := uint64(len(h.write.data)); newSize > attrs.Size {
			attrs.Size = newSize
			attrs.Blocks = blockCount(newSize)
		}
		attrs.Mtime = fs.clock.Now()
		fs.ident.setAttrs(in.id, attrs)
		fs.attrs.put(in.id, attrs)
	}

	return
}

// sync pushes a dirty write buffer to the remote server and mirrors it into
// the read cache. It invalidates the parent's directory cache entry by the
// parent's remote path, not by the decimal identifier: invalidating by a
// stringified inode number can never match a cached remote path and would
// leave the directory cache stale after every write-back.
func (fs *fileSystem) sync(ctx context.Context, hid fuseops.HandleID) error {
	h, ok := fs.handles.get(hid)
	if !ok || h.write == nil || !h.write.dirty {
		return nil
	}

	in, ok := fs.ident.byIdentifier(h.inode)
	if !ok {
		return fuse.ENOENT
	}

	if err := fs.remote.Store(ctx, in.remotePath, h.write.data); err != nil {
		return fuse.EIO
	}
	h.write.dirty = false

	fs.reads.set(in.id, h.write.data)

	attrs := in.attrs
	attrs.Size = uint64(len(h.write.data))
	attrs.Blocks = blockCount(attrs.Size)
	fs.ident.setAttrs(in.id, attrs)
	fs.attrs.put(in.id, attrs)

	if parent, ok := fs.ident.byIdentifier(in.parent); ok {
		fs.dirs.invalidate(parent.remotePath)
	}

	return nil
}

func (fs *fileSystem) SyncFile(op *fuseops.SyncFileOp) (err error) {
	return fs.sync(op.Context(), op.Handle)
}

func (fs *fileSystem) FlushFile(op *fuseops.FlushFileOp) (err error) {
	return fs.sync(op.Context(), op.Handle)
}

func (fs *fileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) (err error) {
	_ = fs.sync(op.Context(), op.Handle)

	id, lastRef, ok := fs.handles.release(op.Handle)
	if ok && lastRef {
		fs.reads.evict(id)
	}
	return
}
