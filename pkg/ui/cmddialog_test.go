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

package ui

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	output   []byte
	err      error
	lastName string
	lastArgs []string
}

func (f *fakeExecutor) Run(_ context.Context, name string, args ...string) error {
	f.lastName = name
	f.lastArgs = args
	return f.err
}

func (f *fakeExecutor) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.lastName = name
	f.lastArgs = args
	return f.output, f.err
}

func TestNewCommandDialog(t *testing.T) {
	t.Parallel()

	_, err := NewCommandDialog(nil, &fakeExecutor{})
	require.Error(t, err)

	dialog, err := NewCommandDialog([]string{"helper", "--flag"}, &fakeExecutor{})
	require.NoError(t, err)
	assert.NotNil(t, dialog)
}

func TestCommandDialog_CollectDefect(t *testing.T) {
	t.Parallel()

	t.Run("result_is_parsed", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{
			output: []byte(`{"product_type":"tshirt","numbers":"3","comment":"пятно"}`),
		}
		dialog, err := NewCommandDialog([]string{"helper", "--flag"}, exec)
		require.NoError(t, err)

		result, err := dialog.CollectDefect(context.Background(), DefectRequest{
			Payload:  "ART-1",
			UserName: "Иван",
			DeviceID: "scanner-1",
		})

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, "tshirt", result.ProductType)
		assert.Equal(t, "3", result.Numbers)
		assert.Equal(t, "пятно", result.Comment)

		// argv is program, own flags, dialog kind, JSON request
		assert.Equal(t, "helper", exec.lastName)
		require.Len(t, exec.lastArgs, 3)
		assert.Equal(t, "--flag", exec.lastArgs[0])
		assert.Equal(t, "defect", exec.lastArgs[1])

		var req DefectRequest
		require.NoError(t, json.Unmarshal([]byte(exec.lastArgs[2]), &req))
		assert.Equal(t, "ART-1", req.Payload)
		assert.Equal(t, "Иван", req.UserName)
	})

	t.Run("empty_output_is_cancel", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{output: []byte("  \n")}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		result, err := dialog.CollectDefect(context.Background(), DefectRequest{})

		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("helper_failure", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{err: errors.New("exit status 1")}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		_, err = dialog.CollectDefect(context.Background(), DefectRequest{})
		require.Error(t, err)
	})

	t.Run("garbage_output", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{output: []byte("not json")}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		_, err = dialog.CollectDefect(context.Background(), DefectRequest{})
		require.Error(t, err)
	})
}

func TestCommandDialog_CollectTransfer(t *testing.T) {
	t.Parallel()

	t.Run("quantities_are_sanitized", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{
			output: []byte(`{"done_map":{"S":2,"M":0,"L":5},"comment":"ok"}`),
		}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		result, err := dialog.CollectTransfer(context.Background(), TransferRequest{Title: "t"})

		require.NoError(t, err)
		require.NotNil(t, result)
		// zero quantities are dropped, positive ones survive
		assert.Equal(t, map[string]int{"S": 2, "L": 5}, result.DoneMap)
		assert.Equal(t, "ok", result.Comment)
		assert.Equal(t, "transfer", exec.lastArgs[0])
	})

	t.Run("negative_quantity_poisons_the_map", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{output: []byte(`{"done_map":{"S":2,"M":-1}}`)}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		result, err := dialog.CollectTransfer(context.Background(), TransferRequest{})

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Empty(t, result.DoneMap)
	})

	t.Run("fractional_quantity_poisons_the_map", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{output: []byte(`{"done_map":{"S":1.5}}`)}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		result, err := dialog.CollectTransfer(context.Background(), TransferRequest{})

		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Empty(t, result.DoneMap)
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		exec := &fakeExecutor{output: nil}
		dialog, err := NewCommandDialog([]string{"helper"}, exec)
		require.NoError(t, err)

		result, err := dialog.CollectTransfer(context.Background(), TransferRequest{})

		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestNoDialog(t *testing.T) {
	t.Parallel()

	_, err := NoDialog{}.CollectDefect(context.Background(), DefectRequest{})
	require.ErrorIs(t, err, ErrNoDialog)

	_, err = NoDialog{}.CollectTransfer(context.Background(), TransferRequest{})
	require.ErrorIs(t, err, ErrNoDialog)
}
