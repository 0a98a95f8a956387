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

// Package supervisor runs the renderer child process through its lifecycle:
// Idle -> Spawning -> Running -> (ExitedNormally | Killed) -> Idle.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/taigachat/launcher-sfu/internal/buildinfo"
	"github.com/taigachat/launcher-sfu/internal/launcherconfig"
	"github.com/taigachat/launcher-sfu/internal/launcherstate"
	"github.com/taigachat/launcher-sfu/internal/platform"
	"github.com/taigachat/launcher-sfu/internal/version"
)

// Phase identifies where in the lifecycle the supervised child currently is.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSpawning
	PhaseRunning
	PhaseExitedNormally
	PhaseKilled
)

// Command carries a control instruction into the supervisor loop.
type Command int

const (
	CommandRestart Command = iota
	CommandShutdown
)

const devServerAddr = "localhost:8080"

// Supervisor owns the renderer child process.
type Supervisor struct {
	plat    platform.Platform
	cfg     *launcherconfig.Config
	store   *version.Store
	state   *launcherstate.State
	secret  string
	port    int
	appVer  string
	cmdCh   chan Command
	phaseCh chan Phase

	// shutdownRequested is set by the run loop when it handles
	// CommandShutdown, so Run stops instead of respawning.
	shutdownRequested bool
}

// New constructs a Supervisor. secret is the launcher's per-process secret
// code, port the Control API's bound port, appVer the running app version
// string embedded in LAUNCHER_BRIDGE_PASSWORD.
func New(
	plat platform.Platform,
	cfg *launcherconfig.Config,
	store *version.Store,
	state *launcherstate.State,
	secret string,
	port int,
	appVer string,
) *Supervisor {
	return &Supervisor{
		plat:    plat,
		cfg:     cfg,
		store:   store,
		state:   state,
		secret:  secret,
		port:    port,
		appVer:  appVer,
		cmdCh:   make(chan Command, 4),
		phaseCh: make(chan Phase, 1),
	}
}

// Commands returns the channel used to send Restart/Shutdown.
func (s *Supervisor) Commands() chan<- Command { return s.cmdCh }

// Run drives the supervisor's state machine until Shutdown is requested, the
// child exits on its own, or ctx is cancelled. The host process is expected
// to terminate when Run returns (the child exiting on its own also ends the
// loop, per the supervisor contract).
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.SkipLaunch() {
		log.Info().Msg("skip-launch mode: supervisor suspended, Control API still runs")
		s.phaseCh <- PhaseIdle
		<-ctx.Done()
		return nil
	}

	for {
		phase, err := s.spawnAndWait(ctx)
		if err != nil {
			return err
		}
		switch phase {
		case PhaseExitedNormally:
			log.Info().Msg("renderer exited on its own, stopping supervisor")
			return nil
		case PhaseKilled:
			if s.shutdownRequested {
				log.Info().Msg("shutdown requested, stopping supervisor")
				return nil
			}
			// a restart was requested; loop to respawn.
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		case PhaseIdle, PhaseSpawning, PhaseRunning:
			// unreachable terminal states from spawnAndWait.
		}
	}
}

// wantsBuildTool reports whether dev-server mode should actually run: the
// config asked for it and this binary was compiled with the developer
// build tag. A release build that requests it is warned and falls back to
// the normal packaged-version launch, matching cfg!(feature =
// "developer_tools") gating the dev-tools entry point in the original.
func (s *Supervisor) wantsBuildTool() bool {
	if !s.cfg.LaunchBuildTool() {
		return false
	}
	if buildinfo.Developer {
		return true
	}
	log.Warn().Msg("build-tool mode requested but this is a release build, ignoring")
	if err := s.plat.Popup("TaigaChat Launcher", "Build-tool mode is unavailable in this build."); err != nil {
		log.Warn().Err(err).Msg("error showing popup")
	}
	return false
}

func (s *Supervisor) spawnAndWait(ctx context.Context) (Phase, error) {
	s.setPhase(PhaseSpawning)

	var devServer *exec.Cmd
	if s.wantsBuildTool() {
		var err error
		devServer, err = s.startDevServer(ctx)
		if err != nil {
			return PhaseKilled, fmt.Errorf("start dev server: %w", err)
		}
		s.waitForDevServerReady()
	}

	name, args, env, err := s.computeCommand()
	if err != nil {
		return PhaseKilled, err
	}

	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec // command line is derived from the installation's own config
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		s.stopDevServer(devServer)
		return PhaseKilled, fmt.Errorf("spawn renderer: %w", err)
	}

	s.state.SetAppProcessID(uint32(cmd.Process.Pid)) //nolint:gosec
	s.setPhase(PhaseRunning)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	for {
		select {
		case err := <-waitCh:
			s.state.SetAppProcessID(0)
			s.stopDevServer(devServer)
			if err != nil {
				log.Warn().Err(err).Msg("renderer exited with error")
			}
			s.setPhase(PhaseExitedNormally)
			return PhaseExitedNormally, nil

		case <-ctx.Done():
			s.killTree(cmd.Process.Pid)
			s.stopDevServer(devServer)
			s.setPhase(PhaseKilled)
			return PhaseKilled, nil

		case c := <-s.cmdCh:
			switch c {
			case CommandShutdown:
				s.shutdownRequested = true
				s.killTree(cmd.Process.Pid)
				s.stopDevServer(devServer)
				s.setPhase(PhaseKilled)
				return PhaseKilled, nil
			case CommandRestart:
				s.killTree(cmd.Process.Pid)
				<-waitCh
				s.stopDevServer(devServer)
				s.setPhase(PhaseKilled)
				return PhaseKilled, nil
			}
		}
	}
}

func (s *Supervisor) killTree(pid int) {
	if err := s.plat.KillTree(int32(pid)); err != nil { //nolint:gosec
		log.Warn().Err(err).Int("pid", pid).Msg("error killing process tree")
	}
}

func (s *Supervisor) startDevServer(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.NPM(), "run", "dev") //nolint:gosec
	if !s.cfg.SilentBuildTool() {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (s *Supervisor) stopDevServer(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	s.killTree(cmd.Process.Pid)
}

// waitForDevServerReady probes localhost:8080 up to 50 times at 100ms
// intervals, proceeding regardless once exhausted.
func (s *Supervisor) waitForDevServerReady() {
	for range 50 {
		conn, err := net.DialTimeout("tcp", devServerAddr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Warn().Msg("dev server readiness probe exhausted, proceeding anyway")
}

func (s *Supervisor) computeCommand() (string, []string, []string, error) {
	bridgePassword := fmt.Sprintf("LAUNCHER_BRIDGE_PASSWORD=%d-%s-%s", s.port, s.secret, s.appVer)
	env := []string{bridgePassword}

	if s.wantsBuildTool() {
		env = append(env, "LAUNCHER_WEB_SERVER=http://"+devServerAddr)
		args := []string{"run", "start"}
		args = append(args, s.extraArgs()...)
		return s.cfg.NPM(), args, env, nil
	}

	execPath, err := s.store.ExecutablePath(s.cfg.NewestVersion())
	if err != nil {
		return "", nil, nil, fmt.Errorf("compute executable path: %w", err)
	}
	if execPath == "" {
		return "", nil, nil, fmt.Errorf("no active version configured")
	}

	return execPath, s.extraArgs(), env, nil
}

func (s *Supervisor) extraArgs() []string {
	args := make([]string, 0, len(s.cfg.ExtraFlags())+2)
	if s.cfg.UseWayland() {
		args = append(args, "--enable-features=UseOzonePlatform", "--ozone-platform=wayland")
	}
	args = append(args, s.cfg.ExtraFlags()...)
	return args
}

func (s *Supervisor) setPhase(p Phase) {
	select {
	case s.phaseCh <- p:
	default:
		<-s.phaseCh
		s.phaseCh <- p
	}
}

// Phase returns the most recently observed lifecycle phase.
func (s *Supervisor) Phase() Phase {
	select {
	case p := <-s.phaseCh:
		s.phaseCh <- p
		return p
	default:
		return PhaseIdle
	}
}
