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
	"fmt"
	"testing"

	"github.com/bellenne/scanserver/pkg/backend"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "ABC-120", want: "abc-120"},
		{name: "strips_spaces", in: " A B C ", want: "abc"},
		{name: "cyrillic_kha_lower", in: "120х80", want: "120x80"},
		{name: "cyrillic_kha_upper", in: "120Х80", want: "120x80"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := normalizeKey(tt.in)
			assert.Equal(t, tt.want, got)
			// idempotent
			assert.Equal(t, got, normalizeKey(got))
		})
	}
}

func TestExtractKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "art_segment_wins", payload: "batch=7|art=ABC-120|qty=3", want: "abc-120"},
		{name: "art_case_insensitive", payload: "ART = XY Z", want: "xyz"},
		{name: "first_segment_fallback", payload: "ABC-120|batch=7", want: "abc-120"},
		{name: "whole_payload_fallback", payload: " |batch=7", want: "|batch=7"},
		{name: "plain_payload", payload: "ABC-120", want: "abc-120"},
		{name: "empty", payload: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extractKey(tt.payload))
		})
	}
}

func TestKeysMatch(t *testing.T) {
	t.Parallel()

	assert.True(t, keysMatch("abc-120", "abc-120"))
	assert.True(t, keysMatch("abc-120", "abc"), "substring either way counts")
	assert.True(t, keysMatch("abc", "abc-120"))
	assert.False(t, keysMatch("abc-120", "xyz-120"))
	assert.True(t, keysMatch("", ""))
	assert.False(t, keysMatch("", "abc"), "empty never tolerant-matches")
	assert.False(t, keysMatch("abc", ""))
}

func TestCompareFill_PairFlow(t *testing.T) {
	t.Parallel()

	t.Run("matching_pair_posts_second_payload", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(nil)
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s, "art=ABC-120|src=label")
		assert.Equal(t, 1, s.SaidCount("Первый принят"))

		m.OnScan(s, "ABC-120|src=sheet")
		assert.Equal(t, 1, s.SaidCount("Всё верно"))

		posts := s.Posts()
		require.Len(t, posts, 1)
		assert.Equal(t, "done", posts[0].action)
		assert.Equal(t, "ABC-120|src=sheet", posts[0].payload, "second scan's payload is submitted")
		assert.Empty(t, posts[0].endpoint, "default events endpoint")
	})

	t.Run("order_does_not_matter", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(nil)
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s, "ABC-120|src=sheet")
		m.OnScan(s, "art=ABC-120|src=label")

		assert.Equal(t, 1, s.SaidCount("Всё верно"))
		require.Len(t, s.Posts(), 1)
	})

	t.Run("mismatch_consumes_pending", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(nil)
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s, "ABC-120")
		m.OnScan(s, "XYZ-300")
		assert.Equal(t, 1, s.SaidCount("Не верно"))
		assert.Empty(t, s.Posts())

		// a failed pair is gone: the next scan starts a fresh pair
		m.OnScan(s, "ABC-120")
		assert.Equal(t, 2, s.SaidCount("Первый принят"))
	})

	t.Run("cyrillic_and_spacing_noise_still_match", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(nil)
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s, "120Х80")
		m.OnScan(s, "120 x 80")

		assert.Equal(t, 1, s.SaidCount("Всё верно"))
	})

	t.Run("devices_are_isolated", func(t *testing.T) {
		t.Parallel()
		s1 := newFakeModeSession(nil)
		s2 := newFakeModeSession(nil)
		s2.device = "scanner-2"
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s1, "ABC-120")
		m.OnScan(s2, "XYZ-300")

		// each device holds its own pending first scan
		assert.Equal(t, 1, s1.SaidCount("Первый принят"))
		assert.Equal(t, 1, s2.SaidCount("Первый принят"))
		assert.Empty(t, s1.Posts())
		assert.Empty(t, s2.Posts())
	})
}

func TestCompareFill_PendingExpiry(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	s := newFakeModeSession(nil)
	m := NewCompareFillMode(clock)

	m.OnScan(s, "ABC-120")
	clock.Advance(m.timeout + 1)

	// the stale pending is dropped, this becomes a new first scan
	m.OnScan(s, "ABC-120")
	assert.Equal(t, 2, s.SaidCount("Первый принят"))
	assert.Empty(t, s.Posts())

	m.OnScan(s, "ABC-120")
	assert.Equal(t, 1, s.SaidCount("Всё верно"))
	require.Len(t, s.Posts(), 1)
}

func TestCompareFill_PostFailure(t *testing.T) {
	t.Parallel()

	t.Run("network_failure_is_voiced_as_no_connection", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(nil)
		s.postErr = fmt.Errorf("%w: dial tcp: refused", backend.ErrNetwork)
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s, "ABC-120")
		m.OnScan(s, "ABC-120")

		assert.Equal(t, 1, s.SaidCount("Всё верно"))
		assert.Equal(t, 1, s.SaidCount("Нет соединения с сервером"))

		// the pair is not resurrected after a failed post
		m.OnScan(s, "ABC-120")
		assert.Equal(t, 2, s.SaidCount("Первый принят"))
	})

	t.Run("rejection_is_voiced_as_send_error", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(nil)
		s.postErr = &backend.StatusError{Code: 500, Body: "oops"}
		m := NewCompareFillMode(clockwork.NewFakeClock())

		m.OnScan(s, "ABC-120")
		m.OnScan(s, "ABC-120")

		assert.Equal(t, 1, s.SaidCount("Ошибка отправки"))
	})
}
