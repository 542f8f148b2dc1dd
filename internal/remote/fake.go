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

package remote

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// fakeNode is one file or directory in a Fake's in-memory tree.
type fakeNode struct {
	isDir bool
	mode  uint32
	data  []byte
}

// Fake is an in-memory Client for dispatcher tests. It has no notion of a
// control connection: Connect, Reconnect, and Close always succeed.
type Fake struct {
	mu    sync.Mutex
	nodes map[string]*fakeNode

	// ListDirCalls counts invocations of ListDir, so tests can assert on the
	// retry-exactly-once policy.
	ListDirCalls int
	// FailNextListDir, when positive, makes the next N ListDir calls fail
	// before succeeding.
	FailNextListDir int
}

// NewFake returns a Fake seeded with a root directory.
func NewFake() *Fake {
	return &Fake{
		nodes: map[string]*fakeNode{
			"/": {isDir: true, mode: 0o755},
		},
	}
}

func (f *Fake) Connect(ctx context.Context) error   { return nil }
func (f *Fake) Reconnect(ctx context.Context) error { return nil }
func (f *Fake) Close() error                        { return nil }

func (f *Fake) Pwd(ctx context.Context) (string, error) {
	return "/", nil
}

// PutFile seeds a file node directly, bypassing Store, for test setup.
func (f *Fake) PutFile(p string, data []byte, mode uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[p] = &fakeNode{mode: mode, data: append([]byte(nil), data...)}
}

// PutDir seeds a directory node directly, for test setup.
func (f *Fake) PutDir(p string, mode uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[p] = &fakeNode{isDir: true, mode: mode}
}

func (f *Fake) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListDirCalls++
	if f.FailNextListDir > 0 {
		f.FailNextListDir--
		return nil, fmt.Errorf("remote: fake forced ListDir failure")
	}

	n, ok := f.nodes[dir]
	if !ok || !n.isDir {
		return nil, fmt.Errorf("remote: %q is not a directory", dir)
	}

	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []Entry
	for p, node := range f.nodes {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue
		}
		perms := node.mode & 0o777
		if node.isDir {
			perms |= 0o040000
		}
		entries = append(entries, Entry{
			Name:        rest,
			Path:        p,
			Size:        uint64(len(node.data)),
			IsDir:       node.isDir,
			Permissions: perms,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (f *Fake) Size(ctx context.Context, p string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[p]
	if !ok || n.isDir {
		return 0, fmt.Errorf("remote: %q not found", p)
	}
	return uint64(len(n.data)), nil
}

func (f *Fake) Retrieve(ctx context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[p]
	if !ok || n.isDir {
		return nil, fmt.Errorf("remote: %q not found", p)
	}
	return append([]byte(nil), n.data...), nil
}

func (f *Fake) Store(ctx context.Context, p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[p]
	if !ok {
		n = &fakeNode{mode: 0o644}
		f.nodes[p] = n
	}
	n.data = append([]byte(nil), data...)
	return nil
}

func (f *Fake) Delete(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[p]
	if !ok {
		return fmt.Errorf("remote: %q not found", p)
	}
	if n.isDir {
		return fmt.Errorf("remote: %q is a directory", p)
	}
	delete(f.nodes, p)
	return nil
}

func (f *Fake) Mkdir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.nodes[p]; ok {
		return fmt.Errorf("remote: %q already exists", p)
	}
	f.nodes[p] = &fakeNode{isDir: true, mode: 0o755}
	return nil
}

func (f *Fake) Rmdir(ctx context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[p]
	if !ok || !n.isDir {
		return fmt.Errorf("remote: %q is not a directory", p)
	}

	prefix := p
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for other := range f.nodes {
		if other != p && strings.HasPrefix(other, prefix) {
			return fmt.Errorf("remote: %q is not empty", p)
		}
	}

	delete(f.nodes, p)
	return nil
}

func (f *Fake) Rename(ctx context.Context, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[from]
	if !ok {
		return fmt.Errorf("remote: %q not found", from)
	}
	delete(f.nodes, from)
	f.nodes[to] = n

	if n.isDir {
		prefix := from
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		for p, child := range f.nodes {
			if strings.HasPrefix(p, prefix) {
				delete(f.nodes, p)
				f.nodes[path.Join(to, strings.TrimPrefix(p, prefix))] = child
			}
		}
	}
	return nil
}

func (f *Fake) IsDir(ctx context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[p]
	return ok && n.isDir, nil
}

func (f *Fake) Exists(ctx context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.nodes[p]
	return ok, nil
}
