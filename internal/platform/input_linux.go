//go:build linux

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

package platform

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// evInputEvent mirrors struct input_event from linux/input.h for amd64/arm64.
type evInputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evInputEventSize = int(unsafe.Sizeof(evInputEvent{}))
	evKey            = 0x01
	btnLeft          = 0x110
)

// linuxInputHook reads raw evdev key events from every /dev/input/event*
// device, watching for hotplugged devices via fsnotify, and republishes them
// on a single bounded broadcast channel. It runs its reader goroutines on a
// dedicated, never-shared pool rather than a literal OS-thread message loop
// (there is no win32-style message loop on Linux); the "dedicated thread"
// contract is satisfied by the lifetime of the watcher goroutine below.
type linuxInputHook struct {
	mu          sync.Mutex
	interested  map[uint32]struct{}
	acceptAll   bool
	mouseClicks atomic.Uint64
	stopCh      chan struct{}
	stopped     atomic.Bool
}

// NewInputHook constructs the linux global input listener.
func NewInputHook() InputHook {
	return &linuxInputHook{
		interested: make(map[uint32]struct{}),
		stopCh:     make(chan struct{}),
	}
}

func (h *linuxInputHook) Start(ctx context.Context) (<-chan InputEvent, error) {
	out := make(chan InputEvent, 128)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add("/dev/input"); err != nil {
		log.Warn().Err(err).Msg("could not watch /dev/input for hotplug")
	}

	tracked := make(map[string]context.CancelFunc)
	var trackedMu sync.Mutex

	track := func(path string) {
		trackedMu.Lock()
		defer trackedMu.Unlock()
		if _, ok := tracked[path]; ok {
			return
		}
		devCtx, cancel := context.WithCancel(ctx)
		tracked[path] = cancel
		go h.readDevice(devCtx, path, out)
	}

	entries, err := os.ReadDir("/dev/input")
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && strings.HasPrefix(e.Name(), "event") {
				track(filepath.Join("/dev/input", e.Name()))
			}
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-h.stopCh:
				return
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create) != 0 {
					track(ev.Name)
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(werr).Msg("input watcher error")
			}
		}
	}()

	return out, nil
}

func (h *linuxInputHook) readDevice(ctx context.Context, path string, out chan<- InputEvent) {
	f, err := os.Open(path)
	if err != nil {
		// most non-keyboard/mouse event nodes are unreadable by an
		// unprivileged user; this is expected, not an error worth logging.
		return
	}
	defer f.Close()

	buf := make([]byte, evInputEventSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := os.NewFile(f.Fd(), path).Read(buf); err != nil {
			return
		}

		// offsets 0:8 sec, 8:16 usec (64-bit time_t layout), 16:18 type,
		// 18:20 code, 20:24 value.
		var e evInputEvent
		e.Type = binary.LittleEndian.Uint16(buf[16:18])
		e.Code = binary.LittleEndian.Uint16(buf[18:20])
		e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))

		if e.Type != evKey {
			continue
		}

		pressed := e.Value != 0

		if e.Code == btnLeft && !pressed {
			h.mouseClicks.Add(1)
		}

		h.maybePublish(out, InputEvent{KeyCode: uint32(e.Code), Pressed: pressed})
	}
}

func (h *linuxInputHook) maybePublish(out chan<- InputEvent, ev InputEvent) {
	h.mu.Lock()
	publish := h.acceptAll
	if publish {
		h.acceptAll = false
	} else {
		_, publish = h.interested[ev.KeyCode]
	}
	h.mu.Unlock()

	if !publish {
		return
	}

	select {
	case out <- ev:
	default:
		log.Debug().Msg("input broadcast channel full, dropping event")
	}
}

func (h *linuxInputHook) SetInterested(codes []uint32) {
	m := make(map[uint32]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	h.mu.Lock()
	h.interested = m
	h.mu.Unlock()
}

func (h *linuxInputHook) AcceptAll() {
	h.mu.Lock()
	h.acceptAll = true
	h.mu.Unlock()
}

func (h *linuxInputHook) MouseClicks() uint64 {
	return h.mouseClicks.Swap(0)
}

func (h *linuxInputHook) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
}
