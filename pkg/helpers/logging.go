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

// Package helpers contains small shared utilities with no domain logic.
package helpers

import (
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFile is the base name of the rotated service log.
const LogFile = "scanserver.log"

// InitLogging configures the global zerolog logger with a rotated file writer
// in logDir plus any extra writers (e.g. a console writer in foreground mode).
func InitLogging(logDir string, debug bool, writers ...io.Writer) {
	logWriters := []io.Writer{&lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFile),
		MaxSize:    1,
		MaxBackups: 2,
	}}
	logWriters = append(logWriters, writers...)

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = log.Output(io.MultiWriter(logWriters...)).
		With().Timestamp().Caller().Logger()
}
