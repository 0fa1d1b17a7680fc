/*
Scanserver
Copyright (c) 2026 The Scanserver Contributors.
SPDX-License-Identifier: GPL-3.0-or-later

This file is part of Scanserver.

Scanserver is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Scanserver is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Scanserver.  If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bellenne/scanserver/pkg/backend"
	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/helpers"
	"github.com/bellenne/scanserver/pkg/helpers/command"
	"github.com/bellenne/scanserver/pkg/scanner"
	"github.com/bellenne/scanserver/pkg/speech"
	"github.com/bellenne/scanserver/pkg/speech/audio"
	"github.com/bellenne/scanserver/pkg/statestore"
	"github.com/bellenne/scanserver/pkg/ui"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String(
		"config-dir",
		".",
		"directory holding the config file, state and caches",
	)
	foreground := flag.Bool(
		"foreground",
		false,
		"log to stderr in addition to the log file",
	)
	flag.Parse()

	var logWriters []io.Writer
	if *foreground {
		logWriters = append(logWriters, os.Stderr)
	}

	cfg, err := config.NewConfig(*configDir, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	helpers.InitLogging(*configDir, cfg.DebugLogging(), logWriters...)
	log.Info().Msg("scanserver starting")

	clock := clockwork.NewRealClock()
	exec := &command.RealExecutor{}

	api := backend.NewClient(cfg.Backend())
	defer api.Close()

	usersCfg := cfg.Users()
	usersTTL := time.Duration(usersCfg.CacheTTLS) * time.Second
	users := backend.NewUsersCache(api, usersCfg.CacheFile, usersTTL, clock)

	// Prime the cache so offline login works from the first scan, then
	// keep it inside its TTL for the life of the daemon.
	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := users.Get(warmCtx); err != nil {
		log.Warn().Err(err).Msg("user list warm-up failed, offline login degraded until refresh")
	}
	cancelWarm()

	refreshStop := make(chan struct{})
	defer close(refreshStop)
	go users.KeepFresh(usersTTL, refreshStop)

	store := statestore.NewFileStore(cfg.StateFile())

	engine := speech.NewEngine(cfg.Speech(), audio.NewMalgoPlayer(), exec)
	queue := speech.NewQueue(engine)
	defer queue.Stop()

	var dialog ui.Dialog = ui.NoDialog{}
	if argv := cfg.DialogCommand(); len(argv) > 0 {
		cmdDialog, err := ui.NewCommandDialog(argv, exec)
		if err != nil {
			return fmt.Errorf("failed to configure dialog: %w", err)
		}
		dialog = cmdDialog
	} else {
		log.Warn().Msg("no dialog command configured, defect and transfer entry disabled")
	}

	mgr := scanner.NewManager(cfg.Devices(), scanner.SessionDeps{
		API:       backend.NewCachedUserClient(api, users),
		Store:     store,
		Speech:    queue,
		Dialog:    dialog,
		Clock:     clock,
		Endpoints: cfg.Endpoints(),
	})

	mgr.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	mgr.Stop()
	mgr.Wait()

	fmt.Println("Scanserver stopped.")
	return nil
}
