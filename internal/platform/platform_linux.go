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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/adrg/xdg"
	"github.com/nixinwang/dialog"
	"github.com/shirou/gopsutil/v4/process"
)

type linuxPlatform struct {
	input InputHook
}

// New constructs the linux Platform implementation.
func New() Platform {
	return &linuxPlatform{input: NewInputHook()}
}

func (p *linuxPlatform) Input() InputHook { return p.input }

// KillTree walks the process tree rooted at pid and kills every descendant
// bottom-up, then the root itself.
func (p *linuxPlatform) KillTree(pid int32) error {
	proc, err := process.NewProcess(pid)
	if err != nil {
		// already gone.
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

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

func (p *linuxPlatform) SetExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.Chmod(path, info.Mode()|0o111); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func (p *linuxPlatform) DataDir(appName string) string {
	return filepath.Join(xdg.DataHome, appName)
}

func (p *linuxPlatform) Popup(title, body string) error {
	if err := dialog.Message("%s", body).Title(title).Info(); err != nil {
		return fmt.Errorf("popup: %w", err)
	}
	return nil
}

// ForegroundOwnedBy walks the X11 _NET_ACTIVE_WINDOW's owning pid (read via
// xdotool if available, falling back to a permissive true on headless/non-X11
// sessions, since there is then no privileged surface to protect anyway) and
// compares it against pid and its ancestors.
func (p *linuxPlatform) ForegroundOwnedBy(pid int32) (bool, error) {
	out, err := exec.CommandContext(context.Background(), "xdotool", "getactivewindow", "getwindowpid").Output()
	if err != nil {
		return true, nil //nolint:nilerr
	}
	fgPid, err := strconv.ParseInt(string(bytesTrimSpace(out)), 10, 32)
	if err != nil {
		return true, nil //nolint:nilerr
	}

	cur := int32(fgPid)
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

func (p *linuxPlatform) ShowWindow(pid int32, state WindowState) error {
	out, err := exec.CommandContext(context.Background(), "xdotool", "search", "--pid", strconv.Itoa(int(pid))).Output()
	if err != nil {
		return fmt.Errorf("locate window for pid %d: %w", pid, err)
	}
	winID := string(bytesTrimSpace(out))
	if winID == "" {
		return fmt.Errorf("no window found for pid %d", pid)
	}

	var cmd *exec.Cmd
	if state == WindowMaximize {
		cmd = exec.CommandContext(context.Background(), "xdotool", "windowsize", winID, "100%", "100%")
	} else {
		cmd = exec.CommandContext(context.Background(), "xdotool", "windowminimize", winID)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xdotool show-state change: %w", err)
	}
	return nil
}

func (p *linuxPlatform) OpenURL(rawURL string) error {
	if err := exec.CommandContext(context.Background(), "xdg-open", rawURL).Run(); err != nil {
		return fmt.Errorf("xdg-open: %w", err)
	}
	return nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
