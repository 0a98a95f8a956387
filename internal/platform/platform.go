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

// Package platform exposes OS-specific primitives behind a uniform API:
// global input listening, recursive process termination, exe-bit handling,
// data-directory resolution, popups and foreground-window ownership tests.
package platform

import "context"

// InputEvent is a single key or mouse event published by the input hook.
type InputEvent struct {
	KeyCode uint32
	Pressed bool
}

// InputHook runs a global OS input listener on a dedicated thread.
type InputHook interface {
	// Start launches the listener thread. Events are published to the
	// returned channel (capacity 128; slow subscribers drop events).
	Start(ctx context.Context) (<-chan InputEvent, error)

	// SetInterested replaces the set of key codes that are published
	// while not in accept-all mode.
	SetInterested(codes []uint32)

	// AcceptAll enables one-shot accept-all mode: the next published
	// event clears it back to interested-set filtering.
	AcceptAll()

	// MouseClicks returns the number of left-button releases observed
	// since the last call, resetting the counter to zero.
	MouseClicks() uint64

	// Stop posts a sentinel that unhooks and exits the listener thread.
	Stop()
}

// Platform groups every OS-specific primitive the launcher needs.
type Platform interface {
	// Input returns the process-wide input hook.
	Input() InputHook

	// KillTree terminates the process rooted at pid and every descendant,
	// bottom-up.
	KillTree(pid int32) error

	// SetExecutable marks path as executable. No-op on platforms without
	// POSIX mode bits.
	SetExecutable(path string) error

	// DataDir returns the user-local data directory to install into.
	DataDir(appName string) string

	// Popup shows a modal informational popup with the given title/body.
	Popup(title, body string) error

	// ForegroundOwnedBy reports whether the foreground window belongs to
	// pid or to any ancestor of pid up to the root.
	ForegroundOwnedBy(pid int32) (bool, error)

	// ShowWindow changes the child's window show-state.
	ShowWindow(pid int32, state WindowState) error

	// OpenURL hands rawURL to the OS URL opener.
	OpenURL(rawURL string) error
}

// WindowState is a coarse show-state for ShowWindow.
type WindowState int

const (
	WindowMinimize WindowState = iota
	WindowMaximize
)
