// TaigaChat
// Copyright (c) 2026 The TaigaChat Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of TaigaChat.
//
// TaigaChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// TaigaChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with TaigaChat.  If not, see <http://www.gnu.org/licenses/>.

package launcherstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryBeginDownloadMutualExclusion(t *testing.T) {
	s := New()
	require.True(t, s.TryBeginDownload())
	assert.False(t, s.TryBeginDownload())
	s.EndDownload()
	assert.True(t, s.TryBeginDownload())
}

func TestTryBeginDownloadConcurrent(t *testing.T) {
	s := New()
	const n = 64
	var wg sync.WaitGroup
	wins := make(chan bool, n)

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- s.TryBeginDownload()
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one goroutine should win TryBeginDownload")
}

func TestTryBeginChangingConfigMutualExclusion(t *testing.T) {
	s := New()
	require.True(t, s.TryBeginChangingConfig())
	assert.False(t, s.TryBeginChangingConfig())
	s.EndChangingConfig()
	assert.True(t, s.TryBeginChangingConfig())
}

func TestDownloadProgressRoundTrip(t *testing.T) {
	s := New()
	s.SetDownloadProgress(1024)
	assert.Equal(t, uint64(1024), s.DownloadProgress())
}

func TestAppProcessIDRoundTrip(t *testing.T) {
	s := New()
	assert.Zero(t, s.AppProcessID())
	s.SetAppProcessID(4242)
	assert.Equal(t, uint32(4242), s.AppProcessID())
}

func TestShutdownCancelsContext(t *testing.T) {
	s := New()
	s.Shutdown()
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("expected context to be cancelled after Shutdown")
	}
}
