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

// Package controlapi implements the launcher's loopback-only, authenticated
// HTTP control channel: /launcher0/<secret-code>/<op>[/...].
package controlapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/taigachat/launcher-sfu/internal/launcherconfig"
	"github.com/taigachat/launcher-sfu/internal/launcherstate"
	"github.com/taigachat/launcher-sfu/internal/platform"
	"github.com/taigachat/launcher-sfu/internal/supervisor"
	"github.com/taigachat/launcher-sfu/internal/version"
)

// Server is the Control API's HTTP listener and SSE broadcaster.
type Server struct {
	secret  string
	root    string
	state   *launcherstate.State
	cfg     *launcherconfig.Config
	store   *version.Store
	plat    platform.Platform
	cmds    chan<- supervisor.Command
	httpSrv *http.Server

	keyEventsMu sync.Mutex
	keySubs     map[chan string]struct{}
}

// New constructs a Server. It does not start listening until Start is
// called.
func New(
	secret, root string,
	state *launcherstate.State,
	cfg *launcherconfig.Config,
	store *version.Store,
	plat platform.Platform,
	cmds chan<- supervisor.Command,
) *Server {
	return &Server{
		secret:  secret,
		root:    root,
		state:   state,
		cfg:     cfg,
		store:   store,
		plat:    plat,
		cmds:    cmds,
		keySubs: make(map[chan string]struct{}),
	}
}

// SetCommands wires the supervisor's command channel after construction,
// breaking the circular dependency between Server (needs cmds) and
// Supervisor (needs the port Start returns).
func (s *Server) SetCommands(cmds chan<- supervisor.Command) { s.cmds = cmds }

// Start binds a loopback listener on an OS-chosen port and serves requests
// until ctx is cancelled. It returns the bound port immediately.
func (s *Server) Start(ctx context.Context) (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("bind control api listener: %w", err)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))
	r.Get("/launcher0/{secret}/*", s.handle)
	r.Post("/launcher0/{secret}/*", s.handle)

	s.httpSrv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control api server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("error shutting down control api")
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port //nolint:forcetypeassert // Listen("tcp", ...) guarantees *net.TCPAddr
	log.Info().Int("port", port).Msg("control api listening")
	return port, nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")
	if secret != s.secret {
		http.Error(w, "bad code", http.StatusUnauthorized)
		return
	}

	rest := chi.URLParam(r, "*")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	op := parts[0]
	args := parts[1:]

	switch op {
	case "setAppSettings0":
		s.handleSetAppSettings(w, r)
	case "getAppSettings0":
		s.handleGetAppSettings(w, r)
	case "setInterestingKeys0":
		s.handleSetInterestingKeys(w, args)
	case "enterKeybindMode0":
		s.handleEnterKeybindMode(w)
	case "keys0":
		s.handleKeysSSE(w, r)
	case "downloadUpdate0":
		s.handleDownloadUpdate(w, r)
	case "deleteVersion0":
		s.handleDeleteVersion(w, r)
	case "getVersions0":
		s.handleGetVersions(w)
	case "setNewestVersion0":
		s.handleSetNewestVersion(w, args)
	case "isActive0":
		s.handleIsActive(w)
	case "openURL0":
		s.handleOpenURL(w, r)
	case "shutdownClient0":
		s.cmds <- supervisor.CommandShutdown
		fmt.Fprint(w, "ok")
	case "minimizeClient0":
		s.handleShowWindow(w, platform.WindowMinimize)
	case "maximizeClient0":
		s.handleShowWindow(w, platform.WindowMaximize)
	case "restartClient0":
		s.cmds <- supervisor.CommandRestart
		fmt.Fprint(w, "ok")
	default:
		http.NotFound(w, r)
	}
}
