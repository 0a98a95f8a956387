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

// Package launcherstate holds the process-wide, single-writer-via-RWMutex
// state shared between the Control API, the Child Supervisor and the
// keybind-manipulating endpoints.
package launcherstate

import (
	"context"

	"github.com/taigachat/launcher-sfu/internal/syncutil"
)

// State is the launcher's process-wide mutable state.
type State struct {
	mu syncutil.RWMutex

	isDownloading    bool
	isChangingConfig bool
	downloadProgress uint64
	appProcessID     uint32

	ctx       context.Context
	cancelCtx context.CancelFunc
}

// New constructs a State whose context is cancelled by Shutdown.
func New() *State {
	ctx, cancel := context.WithCancel(context.Background())
	return &State{ctx: ctx, cancelCtx: cancel}
}

// Context returns the state's lifetime context.
func (s *State) Context() context.Context { return s.ctx }

// Shutdown cancels the state's context.
func (s *State) Shutdown() { s.cancelCtx() }

// TryBeginDownload sets isDownloading if and only if it was false,
// returning whether the caller won the race (true => proceed).
func (s *State) TryBeginDownload() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDownloading {
		return false
	}
	s.isDownloading = true
	s.downloadProgress = 0
	return true
}

// EndDownload clears isDownloading unconditionally. Safe to call on every
// terminal path, including failure.
func (s *State) EndDownload() {
	s.mu.Lock()
	s.isDownloading = false
	s.mu.Unlock()
}

// SetDownloadProgress records the cumulative byte count of the in-flight
// download.
func (s *State) SetDownloadProgress(n uint64) {
	s.mu.Lock()
	s.downloadProgress = n
	s.mu.Unlock()
}

// DownloadProgress returns the cumulative byte count of the in-flight
// download.
func (s *State) DownloadProgress() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.downloadProgress
}

// IsDownloading reports whether a download is currently in progress.
func (s *State) IsDownloading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDownloading
}

// TryBeginChangingConfig sets isChangingConfig if and only if it was false.
// is_changing_config is shared between write-settings and config-promotion
// operations: only one may hold it at a time.
func (s *State) TryBeginChangingConfig() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isChangingConfig {
		return false
	}
	s.isChangingConfig = true
	return true
}

// EndChangingConfig clears isChangingConfig unconditionally.
func (s *State) EndChangingConfig() {
	s.mu.Lock()
	s.isChangingConfig = false
	s.mu.Unlock()
}

// SetAppProcessID records the spawned renderer's pid.
func (s *State) SetAppProcessID(pid uint32) {
	s.mu.Lock()
	s.appProcessID = pid
	s.mu.Unlock()
}

// AppProcessID returns the spawned renderer's pid, or 0 if none is running.
func (s *State) AppProcessID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appProcessID
}

