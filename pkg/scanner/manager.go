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
	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/modes"
	"github.com/rs/zerolog/log"
)

// Manager owns the set of device sessions and their bulk start/stop.
type Manager struct {
	sessions []*Session
}

// NewManager builds one session per configured device. The mode handler
// set is shared across sessions, matching the per-device keying inside
// the compare-fill handler.
func NewManager(devices []config.Device, deps SessionDeps) *Manager {
	if deps.Handlers == nil {
		deps.Handlers = modes.NewHandlers(deps.Clock)
	}

	m := &Manager{}
	for _, device := range devices {
		m.sessions = append(m.sessions, NewSession(device, deps))
	}
	return m
}

// Sessions returns the managed sessions in configuration order.
func (m *Manager) Sessions() []*Session {
	return m.sessions
}

// Start launches every session's reader and watchdog.
func (m *Manager) Start() {
	if len(m.sessions) == 0 {
		log.Warn().Msg("no devices configured, add [[devices]] entries to the config")
		return
	}
	for _, s := range m.sessions {
		s.Start()
	}
}

// Stop signals every session and, being idempotent per session, is safe
// to call more than once.
func (m *Manager) Stop() {
	for _, s := range m.sessions {
		s.Stop()
	}
}

// Wait blocks until every session's goroutines have exited.
func (m *Manager) Wait() {
	for _, s := range m.sessions {
		s.Wait()
	}
}
