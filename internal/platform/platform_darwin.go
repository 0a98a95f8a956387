//go:build darwin

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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/nixinwang/dialog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

type darwinPlatform struct {
	input InputHook
}

// New constructs the darwin Platform implementation.
func New() Platform {
	return &darwinPlatform{input: NewInputHook()}
}

func (p *darwinPlatform) Input() InputHook { return p.input }

func (p *darwinPlatform) KillTree(pid int32) error {
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
	if err := proc.Kill(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	return nil
}

func (p *darwinPlatform) SetExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := os.Chmod(path, info.Mode()|0o111); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return nil
}

func (p *darwinPlatform) DataDir(appName string) string {
	return filepath.Join(xdg.DataHome, appName)
}

func (p *darwinPlatform) Popup(title, body string) error {
	if err := dialog.Message("%s", body).Title(title).Info(); err != nil {
		return fmt.Errorf("popup: %w", err)
	}
	return nil
}

// ForegroundOwnedBy has no CGo-free way to query the frontmost application on
// macOS; always reports true so keybind-mode entry is never spuriously
// refused. Revisit if a CGo build tag is ever introduced for this package.
func (p *darwinPlatform) ForegroundOwnedBy(int32) (bool, error) {
	return true, nil
}

func (p *darwinPlatform) ShowWindow(int32, WindowState) error {
	return fmt.Errorf("window show-state control is not implemented on darwin")
}

func (p *darwinPlatform) OpenURL(rawURL string) error {
	if err := exec.CommandContext(context.Background(), "open", rawURL).Run(); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return nil
}

// darwinInputHook cannot install a CGEventTap without CGo; it starts and
// stops cleanly but never publishes events. Logged once at Start so this
// limitation is visible at runtime rather than silent.
type darwinInputHook struct{}

// NewInputHook constructs the (currently inert) darwin input listener.
func NewInputHook() InputHook { return &darwinInputHook{} }

func (*darwinInputHook) Start(context.Context) (<-chan InputEvent, error) {
	log.Warn().Msg("global input hook is not implemented on darwin (requires CGEventTap/CGo)")
	return make(chan InputEvent), nil
}
func (*darwinInputHook) SetInterested([]uint32) {}
func (*darwinInputHook) AcceptAll()             {}
func (*darwinInputHook) MouseClicks() uint64    { return 0 }
func (*darwinInputHook) Stop()                  {}
