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

// Command sfu runs the TaigaChat SFU Control Layer: it dials the remote
// controller, drives the in-process media worker through a single dispatch
// loop, and exits when that link drops.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/taigachat/launcher-sfu/internal/logging"
	"github.com/taigachat/launcher-sfu/internal/sfu/controller"
	"github.com/taigachat/launcher-sfu/internal/sfu/dispatch"
	"github.com/taigachat/launcher-sfu/internal/sfu/registry"
	"github.com/taigachat/launcher-sfu/internal/sfu/worker"
)

func main() {
	logging.Init(os.Getenv("SFU_LOG_LEVEL") == "debug")

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("sfu exited with error")
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

	env, err := loadEnv()
	if err != nil {
		return err
	}

	w := worker.NewInProcessWorker(worker.Settings{
		LogLevel:   env.logLevel,
		LogTags:    env.logTags,
		RTCMinPort: env.rtcMinPort,
		RTCMaxPort: env.rtcMaxPort,
	})
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing worker")
		}
	}()

	reg := registry.New(w, env.listenIP, env.announceIP)

	link, err := controller.Dial(ctx, env.controllerURL)
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer func() {
		if err := link.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing controller link")
		}
	}()

	d := dispatch.New(reg, link)
	link.SetEnqueuer(d)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := link.ReadLoop(gctx); err != nil {
			cancel()
			return fmt.Errorf("controller link ended: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// sfuEnv is the SFU's immutable, once-read process environment.
type sfuEnv struct {
	controllerURL string
	logLevel      worker.LogLevel
	logTags       []string
	rtcMinPort    uint16
	rtcMaxPort    uint16
	listenIP      string
	announceIP    string
}

// loadEnv reads every SFU_* environment variable once at startup. A missing
// required variable is a configuration error and is fatal.
func loadEnv() (sfuEnv, error) {
	controllerURL := os.Getenv("SFU_CONTROLLER_URL")
	if controllerURL == "" {
		return sfuEnv{}, fmt.Errorf("missing required environment variable SFU_CONTROLLER_URL")
	}
	listenIP := os.Getenv("SFU_LISTEN_IP")
	if listenIP == "" {
		return sfuEnv{}, fmt.Errorf("missing required environment variable SFU_LISTEN_IP")
	}
	announceIP := os.Getenv("SFU_ANNOUNCE_IP")
	if announceIP == "" {
		return sfuEnv{}, fmt.Errorf("missing required environment variable SFU_ANNOUNCE_IP")
	}
	if parsed := net.ParseIP(announceIP); parsed == nil || parsed.IsLoopback() || parsed.IsUnspecified() {
		return sfuEnv{}, fmt.Errorf("SFU_ANNOUNCE_IP %q must not be loopback or unspecified", announceIP)
	}

	minPort, err := parsePort(os.Getenv("SFU_RTC_MIN_PORT"))
	if err != nil {
		return sfuEnv{}, fmt.Errorf("SFU_RTC_MIN_PORT: %w", err)
	}
	maxPort, err := parsePort(os.Getenv("SFU_RTC_MAX_PORT"))
	if err != nil {
		return sfuEnv{}, fmt.Errorf("SFU_RTC_MAX_PORT: %w", err)
	}

	var tags []string
	if raw := os.Getenv("SFU_LOG_TAGS"); raw != "" {
		tags = strings.Split(raw, ";")
	}

	return sfuEnv{
		controllerURL: controllerURL,
		logLevel:      parseLogLevel(os.Getenv("SFU_LOG_LEVEL")),
		logTags:       tags,
		rtcMinPort:    minPort,
		rtcMaxPort:    maxPort,
		listenIP:      listenIP,
		announceIP:    announceIP,
	}, nil
}

func parsePort(raw string) (uint16, error) {
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", raw, err)
	}
	return uint16(n), nil
}

// parseLogLevel maps debug/warn/error to their worker.LogLevel, everything
// else (including unset) to LogLevelNone.
func parseLogLevel(raw string) worker.LogLevel {
	switch raw {
	case "debug":
		return worker.LogLevelDebug
	case "warn":
		return worker.LogLevelWarn
	case "error":
		return worker.LogLevelError
	default:
		return worker.LogLevelNone
	}
}
