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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimiai/ftpfuse/clock"
	"github.com/kimiai/ftpfuse/internal/remote"
)

// TestDirCacheRetriesAfterReconnectBackoff exercises the one-reconnect-and-
// retry path with a clock.FakeClock standing in for the reconnect pause: a
// SimulatedClock never advances on its own, so it cannot stand in for a real
// elapsed-time wait the way a backoff timer needs.
func TestDirCacheRetriesAfterReconnectBackoff(t *testing.T) {
	r := remote.NewFake()
	r.PutDir("/d", 0o755)
	r.PutFile("/d/a.txt", []byte("x"), 0o644)
	r.FailNextListDir = 1

	fc := &clock.FakeClock{WaitTime: time.Millisecond}
	dc := newDirCache(fc, r)

	listing, err := dc.list(context.Background(), "/d")
	require.NoError(t, err)
	assert.Equal(t, 2, r.ListDirCalls, "one failed call, one retry after backoff")
	require.Len(t, listing, 1)
	assert.Equal(t, "a.txt", listing[0].Name)
}
