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
	"fmt"
	"path/filepath"
	"unsafe"

	"github.com/adrg/xdg"
	"github.com/nixinwang/dialog"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	shell32                      = windows.NewLazySystemDLL("shell32.dll")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procGetWindowThreadProcessID = user32.NewProc("GetWindowThreadProcessId")
	procShowWindow               = user32.NewProc("ShowWindow")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procShellExecuteW            = shell32.NewProc("ShellExecuteW")
)

const (
	swMinimize = 6
	swMaximize = 3
)

type windowsPlatform struct {
	input InputHook
}

// New constructs the windows Platform implementation.
func New() Platform {
	return &windowsPlatform{input: NewInputHook()}
}

func (p *windowsPlatform) Input() InputHook { return p.input }

func (p *windowsPlatform) KillTree(pid int32) error {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil //nolint:nilerr
	}
	children, err := proc.Children()
	if err == nil {
		for _, child := range children {
			if err := p.KillTree(child.Pid); err != nil {
				return err
			}
		}
	}
	if err := proc.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

// SetExecutable is a no-op: windows has no POSIX executable bit.
func (p *windowsPlatform) SetExecutable(string) error { return nil }

func (p *windowsPlatform) DataDir(appName string) string {
	return filepath.Join(xdg.DataHome, appName)
}

func (p *windowsPlatform) Popup(title, body string) error {
	if err := dialog.Message("%s", body).Title(title).Info(); err != nil {
		return fmt.Errorf("popup: %w", err)
	}
	return nil
}

func windowPid(hwnd uintptr) uint32 {
	var pid uint32
	_, _, _ = procGetWindowThreadProcessID.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	return pid
}

func (p *windowsPlatform) ForegroundOwnedBy(pid int32) (bool, error) {
	hwnd, _, _ := procGetForegroundWindow.Call()
	if hwnd == 0 {
		return true, nil
	}

	cur := int32(windowPid(hwnd))
	for cur > 0 {
		if cur == pid {
			return true, nil
		}
		proc, err := process.NewProcess(cur)
		if err != nil {
			return false, nil //nolint:nilerr
		}
		parent, err := proc.Ppid()
		if err != nil || parent == cur {
			return false, nil
		}
		cur = parent
	}
	return false, nil
}

// findWindowForPid enumerates top-level windows looking for one owned by
// pid, since Windows has no direct pid-to-HWND API.
func findWindowForPid(pid int32) uintptr {
	var found uintptr
	cb := windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		if visible == 0 {
			return 1
		}
		if int32(windowPid(hwnd)) == pid {
			found = hwnd
			return 0
		}
		return 1
	})
	_, _, _ = procEnumWindows.Call(cb, 0)
	return found
}

func (p *windowsPlatform) ShowWindow(pid int32, state WindowState) error {
	hwnd := findWindowForPid(pid)
	if hwnd == 0 {
		return fmt.Errorf("no window found for pid %d", pid)
	}
	show := uintptr(swMinimize)
	if state == WindowMaximize {
		show = swMaximize
	}
	_, _, _ = procShowWindow.Call(hwnd, show)
	return nil
}

func (p *windowsPlatform) OpenURL(rawURL string) error {
	urlPtr, err := windows.UTF16PtrFromString(rawURL)
	if err != nil {
		return fmt.Errorf("encode url: %w", err)
	}
	openPtr, err := windows.UTF16PtrFromString("open")
	if err != nil {
		return fmt.Errorf("encode verb: %w", err)
	}
	ret, _, _ := procShellExecuteW.Call(
		0,
		uintptr(unsafe.Pointer(openPtr)),
		uintptr(unsafe.Pointer(urlPtr)),
		0, 0, 1,
	)
	if ret <= 32 {
		return fmt.Errorf("ShellExecuteW failed: code %d", ret)
	}
	return nil
}
