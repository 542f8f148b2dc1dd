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

// Package remote is the dispatcher's sole collaborator for talking to the
// FTP server. Everything above this package sees only the Client interface
// and the Entry type; the wire protocol is entirely hidden here.
package remote

import "context"

// Entry is one line of a directory listing, already parsed.
type Entry struct {
	// Basename, as it appears in the listing; never a full path.
	Name string
	// Absolute remote path of this entry.
	Path string
	// Size in bytes. Meaningless for directories.
	Size uint64
	// IsDir is true when the entry is itself a directory.
	IsDir bool
	// Permissions are the low 9 POSIX permission bits parsed from the
	// listing line, plus a directory bit (0o040000) when IsDir is set.
	Permissions uint32
}

// Options configures a new Client.
type Options struct {
	Host     string
	Port     int
	User     string
	Password string
	TLS      bool
	// TLSInsecureSkipVerify disables certificate verification. Development
	// use only.
	TLSInsecureSkipVerify bool
}

// Client is everything the dispatcher needs from the remote FTP server. All
// methods are safe to call concurrently; implementations serialize access to
// the underlying control connection internally.
type Client interface {
	// Connect establishes the control connection and authenticates. It must
	// be called once before any other method.
	Connect(ctx context.Context) error

	// Reconnect tears down and re-establishes the control connection using
	// the same options passed to Connect, then restores the working
	// directory to root.
	Reconnect(ctx context.Context) error

	// Pwd returns the current working directory on the server.
	Pwd(ctx context.Context) (string, error)

	// ListDir lists the contents of path. It saves the current working
	// directory, changes into path, lists, and restores the working
	// directory, so it never leaves the connection's cwd mutated.
	ListDir(ctx context.Context, path string) ([]Entry, error)

	// Size returns the size in bytes of the file at path.
	Size(ctx context.Context, path string) (uint64, error)

	// Retrieve returns the full contents of the file at path.
	Retrieve(ctx context.Context, path string) ([]byte, error)

	// Store writes data as the full contents of the file at path, creating
	// or truncating it.
	Store(ctx context.Context, path string, data []byte) error

	// Delete removes the file at path.
	Delete(ctx context.Context, path string) error

	// Mkdir creates the directory at path.
	Mkdir(ctx context.Context, path string) error

	// Rmdir removes the empty directory at path.
	Rmdir(ctx context.Context, path string) error

	// Rename moves the entry at from to to.
	Rename(ctx context.Context, from, to string) error

	// IsDir reports whether path names a directory.
	IsDir(ctx context.Context, path string) (bool, error)

	// Exists reports whether path names a file or directory.
	Exists(ctx context.Context, path string) (bool, error)

	// Close releases the connection.
	Close() error
}
