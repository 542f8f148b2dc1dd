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

package namefilter

import "testing"

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"notes.txt", false},
		{"notes.txt~", true},
		{".bashrc", false},
		{".file.swp", true},
		{".file.swo", true},
		{".file.swn", true},
		{".attach_pid1234", true},
		{"a.tmp", false},
		{".a.tmp", true},
		{".git", true},
		{".gitignore", true},
		{".DS_Store", true},
		{"__pycache__", false},
		{".__pycache__", true},
		{"readme.md", false},
		{"sub dir", false},
	}

	for _, tc := range cases {
		if got := IsTransient(tc.name); got != tc.want {
			t.Errorf("IsTransient(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
