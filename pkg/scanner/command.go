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

package scanner

import (
	"strconv"
	"strings"

	"github.com/bellenne/scanserver/pkg/modes"
)

// ServiceMarker is the reserved prefix that distinguishes in-band control
// lines from scan payloads. A payload must not begin with it.
const ServiceMarker = "SVC"

// UserCommand selects (or toggles off) the device user.
type UserCommand struct {
	UserID int
}

// ModeCommand switches the device's scan-interpretation mode.
type ModeCommand struct {
	Mode string
}

// ParseServiceCommand classifies a line as a service command. Lines are
// commands when they look like "SVC:USER:42" or "SVC:MODE:TRANSFER"
// (kind and mode name case-insensitive). Any parse failure returns nil:
// the line is then treated as an ordinary scan payload, never an error.
func ParseServiceCommand(line string) any {
	if !strings.HasPrefix(line, ServiceMarker+":") {
		return nil
	}

	parts := strings.Split(line, ":")
	if len(parts) < 3 {
		return nil
	}

	switch strings.ToUpper(strings.TrimSpace(parts[1])) {
	case "USER":
		userID, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil
		}
		return UserCommand{UserID: userID}
	case "MODE":
		mode := strings.ToUpper(strings.TrimSpace(parts[2]))
		if !modes.ValidMode(mode) {
			return nil
		}
		return ModeCommand{Mode: mode}
	default:
		return nil
	}
}
