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
	"fmt"
	"path"
	"strconv"
	"strings"
)

// permBits maps a permission-string rune position to the POSIX bit it grants.
var permBits = [9]uint32{
	0o400, 0o200, 0o100, // owner: r, w, x
	0o040, 0o020, 0o010, // group: r, w, x
	0o004, 0o002, 0o001, // other: r, w, x
}

// parsePermissions converts the 10-character leading field of a UNIX "ls -l"
// style listing line (e.g. "drwxr-xr-x") into mode bits: the low 9 POSIX
// permission bits, plus 0o040000 when the leading character is 'd'.
func parsePermissions(field string) (uint32, error) {
	if len(field) != 10 {
		return 0, fmt.Errorf("remote: permission field %q is not 10 characters", field)
	}

	var mode uint32
	if field[0] == 'd' {
		mode |= 0o040000
	}

	for i := 0; i < 9; i++ {
		if field[i+1] != '-' {
			mode |= permBits[i]
		}
	}

	return mode, nil
}

// FormatPermissions is the left inverse of parsePermissions: it renders mode
// bits back into a 10-character "ls -l" style permission string.
func FormatPermissions(mode uint32) string {
	var b strings.Builder
	if mode&0o040000 != 0 {
		b.WriteByte('d')
	} else {
		b.WriteByte('-')
	}

	letters := [9]byte{'r', 'w', 'x', 'r', 'w', 'x', 'r', 'w', 'x'}
	for i := 0; i < 9; i++ {
		if mode&permBits[i] != 0 {
			b.WriteByte(letters[i])
		} else {
			b.WriteByte('-')
		}
	}

	return b.String()
}

// ParseListLine parses a single "ls -l" style listing line, as returned by
// ServerConn.List, into an Entry rooted under dir. It returns an error for
// lines with fewer than 9 whitespace-separated fields.
func ParseListLine(dir, line string) (Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, fmt.Errorf("remote: listing line has too few fields: %q", line)
	}

	perms, err := parsePermissions(fields[0])
	if err != nil {
		return Entry{}, err
	}

	size, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("remote: listing line has non-numeric size: %q", line)
	}

	name := strings.Join(fields[8:], " ")

	return Entry{
		Name:        name,
		Path:        path.Join(dir, name),
		Size:        size,
		IsDir:       perms&0o040000 != 0,
		Permissions: perms,
	}, nil
}
