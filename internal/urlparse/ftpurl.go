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

// Package urlparse decomposes the ftp_url positional argument into the
// pieces cmd needs to dial and authenticate, leaving flags free to override
// any piece the URL didn't carry.
package urlparse

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// FTPURL is the decomposed form of ftp://[user[:password]@]host[:port][/path].
type FTPURL struct {
	Host     string
	Port     int // 0 if the URL didn't specify one
	User     string
	Password string
	TLS      bool
	Path     string // "" if the URL named no path beyond root
}

// Parse accepts a bare host, a host:port, or a full ftp://... or ftps://...
// URL, and decomposes it. A missing scheme is treated as "ftp://".
func Parse(raw string) (FTPURL, error) {
	if !strings.Contains(raw, "://") {
		raw = "ftp://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return FTPURL{}, fmt.Errorf("parsing FTP URL: %w", err)
	}

	var out FTPURL
	switch u.Scheme {
	case "ftp":
		out.TLS = false
	case "ftps":
		out.TLS = true
	default:
		return FTPURL{}, fmt.Errorf("URL scheme must be ftp:// or ftps://, got %q", u.Scheme)
	}

	out.Host = u.Hostname()
	if out.Host == "" {
		return FTPURL{}, fmt.Errorf("FTP URL must contain a host")
	}

	if p := u.Port(); p != "" {
		port, perr := strconv.Atoi(p)
		if perr != nil {
			return FTPURL{}, fmt.Errorf("parsing port %q: %w", p, perr)
		}
		out.Port = port
	}

	if u.User != nil {
		out.User = u.User.Username()
		out.Password, _ = u.User.Password()
	}

	if path := u.Path; path != "" && path != "/" {
		out.Path = path
	}

	return out, nil
}
