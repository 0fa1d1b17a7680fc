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
	"testing"

	"github.com/bellenne/scanserver/pkg/modes"
	"github.com/stretchr/testify/assert"
)

func TestParseServiceCommand_User(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want any
	}{
		{
			name: "simple_user",
			line: "SVC:USER:42",
			want: UserCommand{UserID: 42},
		},
		{
			name: "lowercase_kind",
			line: "SVC:user:7",
			want: UserCommand{UserID: 7},
		},
		{
			name: "padded_fields",
			line: "SVC: USER : 15 ",
			want: UserCommand{UserID: 15},
		},
		{
			name: "negative_id_parses",
			line: "SVC:USER:-3",
			want: UserCommand{UserID: -3},
		},
		{
			name: "non_numeric_id_is_payload",
			line: "SVC:USER:abc",
			want: nil,
		},
		{
			name: "missing_id_is_payload",
			line: "SVC:USER",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseServiceCommand(tt.line))
		})
	}
}

func TestParseServiceCommand_Mode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want any
	}{
		{
			name: "transfer",
			line: "SVC:MODE:TRANSFER",
			want: ModeCommand{Mode: modes.Transfer},
		},
		{
			name: "lowercase_mode_name",
			line: "SVC:MODE:compare_fill",
			want: ModeCommand{Mode: modes.CompareFill},
		},
		{
			name: "transfer_defect",
			line: "SVC:mode:transfer_defect",
			want: ModeCommand{Mode: modes.TransferDefect},
		},
		{
			name: "unknown_mode_is_payload",
			line: "SVC:MODE:PACKAGE",
			want: nil,
		},
		{
			name: "empty_mode_is_payload",
			line: "SVC:MODE:",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseServiceCommand(tt.line))
		})
	}
}

func TestParseServiceCommand_Payloads(t *testing.T) {
	t.Parallel()

	// Anything that doesn't fully parse is an ordinary scan payload.
	payloads := []string{
		"",
		"ART-100x200|batch=7",
		"SVC",
		"SVC:",
		"SVC:UNKNOWN:1",
		"svc:USER:42", // the marker itself is case-sensitive
		"SVCX:USER:42",
	}

	for _, line := range payloads {
		assert.Nil(t, ParseServiceCommand(line), "line %q", line)
	}
}
