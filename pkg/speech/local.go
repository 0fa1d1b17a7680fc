// Scanserver
// Copyright (c) 2026 The Scanserver Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Scanserver.
//
// Scanserver is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Scanserver is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Scanserver.  If not, see <http://www.gnu.org/licenses/>.

package speech

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/helpers/command"
)

// LocalEngine speaks through an offline espeak-compatible synthesizer on
// the host. It is the fallback when the cloud engine cannot initialize.
type LocalEngine struct {
	exec   command.Executor
	binary string
	voice  string
	rate   int
	volume float64
}

func NewLocalEngine(cfg config.Speech, exec command.Executor) *LocalEngine {
	return &LocalEngine{
		exec:   exec,
		binary: "espeak",
		voice:  cfg.LocalVoice,
		rate:   cfg.LocalRate,
		volume: cfg.Volume,
	}
}

// Speak blocks until the synthesizer process exits, i.e. until the phrase
// has been played.
func (e *LocalEngine) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	args := []string{
		"-s", strconv.Itoa(e.rate),
		// espeak amplitude is 0..200
		"-a", strconv.Itoa(int(e.volume * 200)),
	}
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	args = append(args, text)

	if err := e.exec.Run(context.Background(), e.binary, args...); err != nil {
		return fmt.Errorf("local synthesizer failed: %w", err)
	}
	return nil
}

func (*LocalEngine) Close() error {
	return nil
}
