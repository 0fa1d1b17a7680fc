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
	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/helpers/command"
	"github.com/rs/zerolog/log"
)

// NewEngine selects the synthesis engine once at startup: the cloud engine
// when preferred and initializable, otherwise the local offline engine.
// The choice is never revisited per call.
func NewEngine(cfg config.Speech, player Player, exec command.Executor) Engine {
	if cfg.PreferCloud {
		engine, err := NewCloudEngine(cfg, player)
		if err == nil {
			return engine
		}
		log.Warn().Err(err).Msg("cloud speech engine init failed, falling back to local engine")
	}
	return NewLocalEngine(cfg, exec)
}
