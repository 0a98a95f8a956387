//go:build windows

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
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/windows"
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmLButtonUp  = 0x0202
)

type kbdllhookstruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// windowsInputHook installs low-level keyboard/mouse hooks on a dedicated,
// OS-thread-locked goroutine running its own GetMessage loop, matching the
// win32 convention that SetWindowsHookEx hooks require a message pump on the
// installing thread.
type windowsInputHook struct {
	mu          sync.Mutex
	interested  map[uint32]struct{}
	acceptAll   bool
	mouseClicks atomic.Uint64
	stopCh      chan struct{}
	stopped     atomic.Bool
	threadID    atomic.Uint32
}

// NewInputHook constructs the windows global input listener.
func NewInputHook() InputHook {
	return &windowsInputHook{
		interested: make(map[uint32]struct{}),
		stopCh:     make(chan struct{}),
	}
}

func (h *windowsInputHook) Start(ctx context.Context) (<-chan InputEvent, error) {
	out := make(chan InputEvent, 128)

	ready := make(chan struct{})
	go h.messageLoop(ctx, out, ready)
	<-ready

	return out, nil
}

func (h *windowsInputHook) messageLoop(ctx context.Context, out chan<- InputEvent, ready chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	user32 := windows.NewLazySystemDLL("user32.dll")
	kernel32 := windows.NewLazySystemDLL("kernel32.dll")
	setHook := user32.NewProc("SetWindowsHookExW")
	callNext := user32.NewProc("CallNextHookEx")
	unhook := user32.NewProc("UnhookWindowsHookEx")
	getMessage := user32.NewProc("GetMessageW")
	getModuleHandle := kernel32.NewProc("GetModuleHandleW")
	getCurrentThreadID := kernel32.NewProc("GetCurrentThreadId")
	postThreadMessage := user32.NewProc("PostThreadMessageW")

	tid, _, _ := getCurrentThreadID.Call()
	h.threadID.Store(uint32(tid))

	mod, _, _ := getModuleHandle.Call(0)

	kbCallback := windows.NewCallback(func(nCode int32, wParam uintptr, lParam uintptr) uintptr {
		if nCode >= 0 {
			kb := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			pressed := wParam == wmKeyDown
			if wParam == wmKeyDown || wParam == wmKeyUp {
				h.maybePublish(out, InputEvent{KeyCode: kb.VkCode, Pressed: pressed})
			}
		}
		ret, _, _ := callNext.Call(0, uintptr(nCode), wParam, lParam)
		return ret
	})
	msCallback := windows.NewCallback(func(nCode int32, wParam uintptr, lParam uintptr) uintptr {
		if nCode >= 0 && wParam == wmLButtonUp {
			h.mouseClicks.Add(1)
		}
		ret, _, _ := callNext.Call(0, uintptr(nCode), wParam, lParam)
		return ret
	})

	kbHook, _, _ := setHook.Call(whKeyboardLL, kbCallback, mod, 0)
	msHook, _, _ := setHook.Call(whMouseLL, msCallback, mod, 0)

	close(ready)

	go func() {
		<-ctx.Done()
		_, _, _ = postThreadMessage.Call(uintptr(tid), 0x0012 /* WM_QUIT */, 0, 0)
	}()
	go func() {
		<-h.stopCh
		_, _, _ = postThreadMessage.Call(uintptr(tid), 0x0012, 0, 0)
	}()

	var msg [6]uintptr // MSG struct is larger; only used as an opaque buffer here.
	for {
		ret, _, _ := getMessage.Call(uintptr(unsafe.Pointer(&msg[0])), 0, 0, 0)
		if ret == 0 {
			break
		}
	}

	if kbHook != 0 {
		_, _, _ = unhook.Call(kbHook)
	}
	if msHook != 0 {
		_, _, _ = unhook.Call(msHook)
	}
	log.Debug().Msg("windows input hook thread exiting")
}

func (h *windowsInputHook) maybePublish(out chan<- InputEvent, ev InputEvent) {
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

func (h *windowsInputHook) SetInterested(codes []uint32) {
	m := make(map[uint32]struct{}, len(codes))
	for _, c := range codes {
		m[c] = struct{}{}
	}
	h.mu.Lock()
	h.interested = m
	h.mu.Unlock()
}

func (h *windowsInputHook) AcceptAll() {
	h.mu.Lock()
	h.acceptAll = true
	h.mu.Unlock()
}

func (h *windowsInputHook) MouseClicks() uint64 {
	return h.mouseClicks.Swap(0)
}

func (h *windowsInputHook) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		close(h.stopCh)
	}
}
