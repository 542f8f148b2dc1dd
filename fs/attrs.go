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
	"time"

	"github.com/jacobsa/fuse/fuseops"
)

// Kind distinguishes the two node types this filesystem ever materializes.
// Symlinks, device nodes, and sockets are out of scope.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Attributes is the dispatcher's own domain representation of an inode's
// metadata. It is richer than fuseops.InodeAttributes (Blocks, Rdev, Flags,
// BlkSize have no home there); toFuseAttrs narrows it at the kernel-bridge
// boundary.
type Attributes struct {
	Size    uint64
	Blocks  uint64
	Kind    Kind
	Mode    os.FileMode // low 9 bits only; directory-ness lives in Kind
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	Flags   uint32
	BlkSize uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Crtime  time.Time
}

const blockSize = 512

// blockCount returns ceil(size / 512), the value the attribute snapshot's
// Blocks field always carries.
func blockCount(size uint64) uint64 {
	return (size + blockSize - 1) / blockSize
}

// newAttributes builds a snapshot for a freshly observed remote entry.
func newAttributes(size uint64, isDir bool, perm os.FileMode, uid, gid uint32, now time.Time) Attributes {
	kind := KindFile
	nlink := uint32(1)
	if isDir {
		kind = KindDir
		nlink = 2
	}

	return Attributes{
		Size:    size,
		Blocks:  blockCount(size),
		Kind:    kind,
		Mode:    perm & 0o777,
		Nlink:   nlink,
		Uid:     uid,
		Gid:     gid,
		Rdev:    0,
		Flags:   0,
		BlkSize: blockSize,
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
		Crtime:  now,
	}
}

// toFuseAttrs narrows a domain Attributes into the shape jacobsa/fuse wants
// on the wire.
func toFuseAttrs(a Attributes) fuseops.InodeAttributes {
	mode := a.Mode
	if a.Kind == KindDir {
		mode |= os.ModeDir
	}

	return fuseops.InodeAttributes{
		Size:   a.Size,
		Nlink:  a.Nlink,
		Mode:   mode,
		Atime:  a.Atime,
		Mtime:  a.Mtime,
		Ctime:  a.Ctime,
		Crtime: a.Crtime,
		Uid:    a.Uid,
		Gid:    a.Gid,
	}
}

// entryExpiration and attributesExpiration are both the kernel-bridge
// contract's 30 second attribute TTL.
const kernelAttributeTTL = 30 * time.Second
