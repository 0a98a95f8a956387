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

// Command launcher runs the TaigaChat Launcher Control Plane: it merges
// configuration, activates versions, supervises the renderer child process,
// and serves the loopback Control API the renderer talks to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/taigachat/launcher-sfu/internal/buildinfo"
	"github.com/taigachat/launcher-sfu/internal/controlapi"
	"github.com/taigachat/launcher-sfu/internal/launcherconfig"
	"github.com/taigachat/launcher-sfu/internal/launcherstate"
	"github.com/taigachat/launcher-sfu/internal/logging"
	"github.com/taigachat/launcher-sfu/internal/platform"
	"github.com/taigachat/launcher-sfu/internal/secret"
	"github.com/taigachat/launcher-sfu/internal/supervisor"
	"github.com/taigachat/launcher-sfu/internal/version"
)

// secretCodeLength is the number of random alphanumeric characters in the
// per-process Control API secret.
const secretCodeLength = 24

// bundledVersionName is the filename of a version archive shipped next to
// the launcher executable, if any, activated automatically on first run.
const bundledVersionName = "bundled-version.tar.gz"

func main() {
	logging.Init(os.Getenv("TAIGACHAT_LAUNCHER_DEBUG") == "1")

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("launcher exited with error")
	}
}

func run() error {
	sigs := make(chan os.Signal, 1)
	defer close(sigs)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sigs
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	plat := platform.New()
	root := resolveRoot(plat)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create installation root %s: %w", root, err)
	}

	cfg := launcherconfig.Load(root)
	store := version.New(root)
	state := launcherstate.New()

	if activateBundledVersion(plat, store, cfg, root) {
		cfg = launcherconfig.Load(root)
	}

	code, err := secret.Code(secretCodeLength)
	if err != nil {
		return err
	}

	api := controlapi.New(code, root, state, cfg, store, plat, nil)
	port, err := api.Start(ctx)
	if err != nil {
		return err
	}

	sup := supervisor.New(plat, cfg, store, state, code, port, buildinfo.AppVersion)
	api.SetCommands(sup.Commands())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sup.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("launcher subsystem failed: %w", err)
	}
	return nil
}

// resolveRoot honors TAIGACHAT_CLIENT_ROOT as an override (read directly,
// since launcherconfig.Load needs the root to already be known), falling
// back to the platform's user-local data directory.
func resolveRoot(plat platform.Platform) string {
	if override := os.Getenv("TAIGACHAT_CLIENT_ROOT"); override != "" {
		return override
	}
	return plat.DataDir(buildinfo.AppName)
}

// activateBundledVersion handles first-run (and post-upgrade) activation:
// when the running launcher's build date doesn't match installation.env's
// stored one, unpack and activate the
// version bundled next to the executable, then show an informational
// popup. Errors are logged, never fatal: an unbundled or already-matching
// launcher must still start normally. Reports whether installation.env was
// rewritten, so the caller can reload its Config snapshot.
func activateBundledVersion(plat platform.Platform, store *version.Store, cfg *launcherconfig.Config, root string) bool {
	if cfg.LatestLauncherBuildDate() == buildinfo.BuildDate {
		return false
	}

	exe, err := os.Executable()
	if err != nil {
		log.Error().Err(err).Msg("error resolving launcher executable path")
		return false
	}
	bundled := filepath.Join(filepath.Dir(exe), bundledVersionName)

	name, err := store.ActivateBundled(bundled)
	if err != nil {
		log.Error().Err(err).Msg("error activating bundled version")
		return false
	}
	if name == "" {
		return false
	}

	if err := launcherconfig.WriteInstallationEnv(root, buildinfo.BuildDate, name); err != nil {
		log.Error().Err(err).Msg("error writing installation.env after bundled activation")
		return false
	}

	if err := plat.Popup("TaigaChat updated", "A new bundled version has been installed."); err != nil {
		log.Warn().Err(err).Msg("error showing bundled-activation popup")
	}
	return true
}
