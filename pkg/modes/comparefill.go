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

package modes

import (
	"strings"
	"time"

	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const defaultPendingTimeout = 30 * time.Second

// pendingCompare is the stored first half of a two-scan reconciliation,
// awaiting its match or expiry.
type pendingCompare struct {
	ts      time.Time
	key     string
	payload string
}

// CompareFillMode treats two consecutive scans on one device as a matched
// pair regardless of physical scan order and submits exactly one "done"
// event per verified pair.
type CompareFillMode struct {
	clock   clockwork.Clock
	pending map[string]pendingCompare
	timeout time.Duration
	mu      syncutil.Mutex // protects pending
}

func NewCompareFillMode(clock clockwork.Clock) *CompareFillMode {
	return &CompareFillMode{
		clock:   clock,
		pending: make(map[string]pendingCompare),
		timeout: defaultPendingTimeout,
	}
}

// normalizeKey produces a stable comparison key: trimmed, Cyrillic х/Х
// mapped to Latin x (scanners and labels mix the two), spaces removed,
// lowercased. Idempotent.
func normalizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "х", "x")
	s = strings.ReplaceAll(s, "Х", "x")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToLower(s)
}

// extractKey pulls the comparison key out of a payload: an art=VALUE
// segment wins, then the first |-separated segment, then the whole payload.
func extractKey(payload string) string {
	if payload == "" {
		return ""
	}

	parts := strings.Split(payload, "|")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		k, v, found := strings.Cut(part, "=")
		if found && strings.EqualFold(strings.TrimSpace(k), "art") {
			return normalizeKey(v)
		}
	}

	if strings.TrimSpace(parts[0]) != "" {
		return normalizeKey(parts[0])
	}
	return normalizeKey(payload)
}

// keysMatch is exact equality with a tolerant fallback: one key containing
// the other also counts, to absorb source/suffix noise in labels. It is a
// documented fuzzy-match policy, not an equivalence relation.
func keysMatch(first, second string) bool {
	if first == second {
		return true
	}
	if first == "" || second == "" {
		return false
	}
	return strings.Contains(first, second) || strings.Contains(second, first)
}

func (m *CompareFillMode) OnScan(s Session, payload string) {
	now := m.clock.Now()
	dev := s.DeviceID()
	curKey := extractKey(payload)

	m.mu.Lock()
	pend, hasPending := m.pending[dev]
	if hasPending && now.Sub(pend.ts) > m.timeout {
		log.Info().Str("device", dev).Dur("age", now.Sub(pend.ts)).Msg("pending compare expired")
		delete(m.pending, dev)
		hasPending = false
	}

	if !hasPending {
		m.pending[dev] = pendingCompare{key: curKey, payload: payload, ts: now}
		m.mu.Unlock()
		s.Say("Первый принят. Жду второй.")
		log.Info().Str("device", dev).Str("key", curKey).Msg("compare pending set")
		return
	}

	// Second scan: pending is consumed whatever the outcome, so a failed
	// pair must be rescanned from scratch.
	delete(m.pending, dev)
	m.mu.Unlock()

	if !keysMatch(pend.key, curKey) {
		s.Say("Не верно.")
		log.Info().
			Str("device", dev).
			Str("first_key", pend.key).
			Str("second_key", curKey).
			Msg("compare failed")
		return
	}

	s.Say("Всё верно.")
	log.Info().Str("device", dev).Str("key", curKey).Msg("compare ok")

	// The second scan's raw payload goes to the backend. A failed post is
	// only reported by voice; the pending pair is not resurrected.
	if err := s.PostEvent("done", payload, nil, ""); err != nil {
		log.Warn().Err(err).Str("device", dev).Msg("compare post failed")
		reportSendError(s, err)
	}
}
