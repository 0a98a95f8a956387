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

package controlapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/taigachat/launcher-sfu/internal/launcherconfig"
	"github.com/taigachat/launcher-sfu/internal/platform"
	"github.com/taigachat/launcher-sfu/internal/version"
)

func (s *Server) extraConfigPath() string {
	return filepath.Join(s.root, "extraconfig.json")
}

func (s *Server) handleSetAppSettings(w http.ResponseWriter, r *http.Request) {
	if !s.state.TryBeginChangingConfig() {
		http.Error(w, "already changing settings", http.StatusConflict)
		return
	}
	defer s.state.EndChangingConfig()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if err := os.WriteFile(s.extraConfigPath(), body, 0o644); err != nil { //nolint:gosec
		log.Error().Err(err).Msg("error writing extraconfig.json")
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}

	fmt.Fprint(w, "ok")
}

func (s *Server) handleGetAppSettings(w http.ResponseWriter, _ *http.Request) {
	body, err := os.ReadFile(s.extraConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("error reading extraconfig.json")
		}
		return
	}
	w.Write(body) //nolint:errcheck
}

func (s *Server) handleSetInterestingKeys(w http.ResponseWriter, args []string) {
	if len(args) > s.cfg.MaxKeybinds() {
		http.Error(w, "too many keybinds", http.StatusBadRequest)
		return
	}

	codes := make([]uint32, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			http.Error(w, "invalid key code", http.StatusBadRequest)
			return
		}
		codes = append(codes, uint32(n))
	}

	s.plat.Input().SetInterested(codes)
	fmt.Fprint(w, "ok")
}

func (s *Server) handleEnterKeybindMode(w http.ResponseWriter) {
	owned, err := s.plat.ForegroundOwnedBy(int32(s.state.AppProcessID())) //nolint:gosec
	if err != nil {
		log.Warn().Err(err).Msg("error checking foreground window ownership")
	}
	if owned {
		s.plat.Input().AcceptAll()
	}
	fmt.Fprint(w, "ok")
}

func (s *Server) handleKeysSSE(w http.ResponseWriter, r *http.Request) {
	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := s.plat.Input().Start(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("error starting input hook")
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			state := "0"
			if ev.Pressed {
				state = "1"
			}
			if err := sse.send("key0", fmt.Sprintf("%d %s", ev.KeyCode, state)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	name := string(body)

	if err := s.store.Delete(name, s.cfg.NewestVersion()); err != nil {
		if errors.Is(err, version.ErrActiveVersion) {
			http.Error(w, "can not delete latest version", http.StatusForbidden)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fmt.Fprint(w, "ok")
}

func (s *Server) handleGetVersions(w http.ResponseWriter) {
	names, err := s.store.List()
	if err != nil {
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "versions %s", strings.Join(names, " "))
}

func (s *Server) handleSetNewestVersion(w http.ResponseWriter, args []string) {
	if len(args) != 1 || args[0] == "" {
		http.Error(w, "missing version", http.StatusBadRequest)
		return
	}
	ver := args[0]

	if !s.state.TryBeginChangingConfig() {
		http.Error(w, "already changing settings", http.StatusConflict)
		return
	}
	defer s.state.EndChangingConfig()

	execPath, err := s.store.ExecutablePath(ver)
	if err != nil || execPath == "" {
		http.Error(w, "malformed version name", http.StatusBadRequest)
		return
	}
	if err := s.plat.SetExecutable(execPath); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := launcherconfig.WriteInstallationEnv(s.root, s.cfg.LatestLauncherBuildDate(), ver); err != nil {
		log.Error().Err(err).Msg("error writing installation.env")
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	s.cfg.Reload()

	fmt.Fprint(w, "ok")
}

func (s *Server) handleIsActive(w http.ResponseWriter) {
	if s.plat.Input().MouseClicks() > 0 {
		fmt.Fprint(w, "userIsActive")
		return
	}
	fmt.Fprint(w, "userIsInactive")
}

func (s *Server) handleOpenURL(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(string(body))
	if err != nil || parsed.Scheme == "" {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}

	if err := s.plat.OpenURL(parsed.String()); err != nil {
		http.Error(w, "opener failed", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, "ok")
}

func (s *Server) handleShowWindow(w http.ResponseWriter, state platform.WindowState) {
	if err := s.plat.ShowWindow(int32(s.state.AppProcessID()), state); err != nil { //nolint:gosec
		log.Warn().Err(err).Msg("error changing window show-state")
	}
	fmt.Fprint(w, "ok")
}
