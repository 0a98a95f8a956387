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

// Package launcherconfig merges the layered key/value configuration: the
// installation root's installation.env, its launcher.env, and environment
// variables, later layers overriding earlier ones.
package launcherconfig

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"

	"github.com/taigachat/launcher-sfu/internal/syncutil"
)

// filePrefix is stripped from keys read out of installation.env/launcher.env.
const filePrefix = "TAIGACHAT_"

// envPrefix is stripped from process environment variable names.
const envPrefix = "TAIGACHAT_CLIENT_"

// recognized is the full set of keys this loader understands, with their
// default values.
var recognized = map[string]string{
	"ROOT":                      "",
	"LAUNCH_BUILD_TOOL":         "0",
	"SILENT_BUILD_TOOL":         "0",
	"NPM":                       "pnpm",
	"USE_WAYLAND":               "0",
	"SKIP_LAUNCH":               "0",
	"MAX_KEYBINDS":              "32",
	"NEWEST_VERSION":            "",
	"EXTRA_FLAGS":               "",
	"LATEST_LAUNCHER_BUILDDATE": "",
}

// Config is an immutable snapshot of the merged configuration, replaced
// atomically on mutation by Reload.
type Config struct {
	mu     syncutil.RWMutex
	values map[string]string
	root   string
}

// Load merges installation.env, launcher.env (both under root) and the
// process environment into a new Config.
func Load(root string) *Config {
	c := &Config{root: root}
	c.reload()
	return c
}

// Reload re-merges installation.env, launcher.env and the process
// environment, atomically replacing the snapshot readers observe. Callers
// that write installation.env (e.g. after activating a version) must call
// Reload afterward so the running process's Config reflects the change.
func (c *Config) Reload() {
	c.reload()
}

func (c *Config) reload() {
	values := make(map[string]string, len(recognized))
	for k, v := range recognized {
		values[k] = v
	}

	applyFile(values, filepath.Join(c.root, "installation.env"))
	applyFile(values, filepath.Join(c.root, "launcher.env"))

	for _, e := range os.Environ() {
		key, val, ok := strings.Cut(e, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		setRecognized(values, strings.TrimPrefix(key, envPrefix), val)
	}

	c.mu.Lock()
	c.values = values
	c.mu.Unlock()
}

func applyFile(values map[string]string, path string) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowBooleanKeys:    true,
		IgnoreInlineComment: true,
	}, path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("error reading config file")
		}
		return
	}

	section := cfg.Section("")
	for _, key := range section.Keys() {
		name := key.Name()
		if !strings.HasPrefix(name, filePrefix) {
			continue
		}
		setRecognized(values, strings.TrimPrefix(name, filePrefix), key.Value())
	}
}

func setRecognized(values map[string]string, key, val string) {
	if _, ok := recognized[key]; !ok {
		log.Warn().Str("key", key).Msg("ignoring unrecognized config key")
		return
	}
	if defaultIsBool(key) && val != "0" && val != "1" {
		log.Warn().Str("key", key).Str("value", val).Msg("boolean config key must be 0 or 1, ignoring")
		return
	}
	values[key] = val
}

func defaultIsBool(key string) bool {
	switch key {
	case "LAUNCH_BUILD_TOOL", "SILENT_BUILD_TOOL", "USE_WAYLAND", "SKIP_LAUNCH":
		return true
	default:
		return false
	}
}

func (c *Config) get(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

func (c *Config) getBool(key string) bool {
	return c.get(key) == "1"
}

// Root returns the installation root override, or "" if unset.
func (c *Config) Root() string { return c.get("ROOT") }

// LaunchBuildTool reports developer dev-server mode.
func (c *Config) LaunchBuildTool() bool { return c.getBool("LAUNCH_BUILD_TOOL") }

// SilentBuildTool reports whether dev-server stdout should be suppressed.
func (c *Config) SilentBuildTool() bool { return c.getBool("SILENT_BUILD_TOOL") }

// NPM returns the package-runner binary name.
func (c *Config) NPM() string { return c.get("NPM") }

// UseWayland reports whether Wayland flags should be appended to the child.
func (c *Config) UseWayland() bool { return c.getBool("USE_WAYLAND") }

// SkipLaunch reports whether the supervisor should suspend without spawning.
func (c *Config) SkipLaunch() bool { return c.getBool("SKIP_LAUNCH") }

// MaxKeybinds returns the upper bound on the interested-keys set.
func (c *Config) MaxKeybinds() int {
	n, err := strconv.Atoi(c.get("MAX_KEYBINDS"))
	if err != nil || n < 0 {
		return 32
	}
	return n
}

// NewestVersion returns the active version filename.
func (c *Config) NewestVersion() string { return c.get("NEWEST_VERSION") }

// ExtraFlags returns the csv-separated flags appended to the child command
// line.
func (c *Config) ExtraFlags() []string {
	raw := c.get("EXTRA_FLAGS")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// LatestLauncherBuildDate returns the stored launcher build date used to
// detect launcher upgrades.
func (c *Config) LatestLauncherBuildDate() string { return c.get("LATEST_LAUNCHER_BUILDDATE") }

// WriteInstallationEnv overwrites installation.env with exactly the two
// persisted keys, atomically (temp file + rename).
func WriteInstallationEnv(root, latestBuildDate, newestVersion string) error {
	content := "TAIGACHAT_LATEST_LAUNCHER_BUILDDATE=" + latestBuildDate + "\n" +
		"TAIGACHAT_NEWEST_VERSION=" + newestVersion + "\n"

	path := filepath.Join(root, "installation.env")
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil { //nolint:gosec
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return nil
}
