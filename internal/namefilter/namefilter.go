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

// Package namefilter classifies basenames that editors, version-control
// tools, and the kernel itself are known to create and discard, so the
// dispatcher never bothers the remote server about them.
package namefilter

import "strings"

// patterns is checked as a substring match against names that start with a
// dot, mirroring the set of tools known to scatter debris next to the files
// they're editing.
var patterns = []string{
	".attach_pid",
	".swp",
	".swo",
	".swn",
	"~",
	".tmp",
	".temp",
	".git",
	".svn",
	".hg",
	".vscode",
	".idea",
	"__pycache__",
	".pyc",
	".pyo",
	".DS_Store",
	".directory",
	".nfs",
	".lock",
	".pid",
}

// IsTransient reports whether name is debris the dispatcher should never
// forward to the remote server: editor swap/backup files, VCS metadata
// directories, IDE configuration, and similar.
func IsTransient(name string) bool {
	if strings.HasSuffix(name, "~") {
		return true
	}

	if strings.HasPrefix(name, ".") {
		for _, p := range patterns {
			if strings.Contains(name, p) {
				return true
			}
		}
	}

	return false
}
