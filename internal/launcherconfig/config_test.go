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

package launcherconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLayering(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "installation.env"),
		[]byte("TAIGACHAT_NEWEST_VERSION=app-1.0.0.tar.gz\nTAIGACHAT_LATEST_LAUNCHER_BUILDDATE=2026-01-01\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "launcher.env"),
		[]byte("# comment\nTAIGACHAT_NEWEST_VERSION=app-1.1.0.tar.gz\n"),
		0o644,
	))

	t.Setenv("TAIGACHAT_CLIENT_SKIP_LAUNCH", "1")

	cfg := Load(root)
	assert.Equal(t, "app-1.1.0.tar.gz", cfg.NewestVersion(), "launcher.env should override installation.env")
	assert.Equal(t, "2026-01-01", cfg.LatestLauncherBuildDate())
	assert.True(t, cfg.SkipLaunch(), "environment variable should override both files")
}

func TestUnrecognizedKeyIgnored(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "installation.env"),
		[]byte("TAIGACHAT_BOGUS_KEY=oops\n"),
		0o644,
	))

	cfg := Load(root)
	assert.Equal(t, "", cfg.get("BOGUS_KEY"))
}

func TestBooleanKeyRejectsNonZeroOne(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "installation.env"),
		[]byte("TAIGACHAT_USE_WAYLAND=yes\n"),
		0o644,
	))

	cfg := Load(root)
	assert.False(t, cfg.UseWayland(), "invalid boolean value should fall back to default")
}

func TestWriteInstallationEnvRoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteInstallationEnv(root, "2026-02-01", "app-2.0.0.tar.gz"))

	cfg := Load(root)
	assert.Equal(t, "2026-02-01", cfg.LatestLauncherBuildDate())
	assert.Equal(t, "app-2.0.0.tar.gz", cfg.NewestVersion())
}

func TestMaxKeybindsDefault(t *testing.T) {
	cfg := Load(t.TempDir())
	assert.Equal(t, 32, cfg.MaxKeybinds())
}
