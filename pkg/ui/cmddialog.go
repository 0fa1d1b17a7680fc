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
	"fmt"
	"strings"

	"github.com/bellenne/scanserver/pkg/helpers/command"
	"github.com/rs/zerolog/log"
)

// rawTransferResult defers quantity parsing so the boundary can reject
// non-integer values instead of letting encoding/json round them.
type rawTransferResult struct {
	DoneMap map[string]json.Number `json:"done_map"`
	Comment string                 `json:"comment"`
}

// CommandDialog shells out to a configured helper program for each dialog.
// The request is passed as a JSON argument and the result is read as JSON
// from stdout; empty output means the operator canceled.
type CommandDialog struct {
	exec command.Executor
	argv []string
}

// NewCommandDialog builds a dialog backed by the given argv. The dialog
// kind ("defect" or "transfer") and the JSON request are appended as the
// final two arguments.
func NewCommandDialog(argv []string, exec command.Executor) (*CommandDialog, error) {
	if len(argv) == 0 {
		return nil, errors.New("dialog command not configured")
	}
	return &CommandDialog{argv: argv, exec: exec}, nil
}

func (d *CommandDialog) CollectDefect(ctx context.Context, req DefectRequest) (*DefectResult, error) {
	out, err := d.invoke(ctx, "defect", &req)
	if err != nil || out == nil {
		return nil, err
	}

	var result DefectResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("failed to parse defect dialog result: %w", err)
	}
	return &result, nil
}

func (d *CommandDialog) CollectTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	out, err := d.invoke(ctx, "transfer", &req)
	if err != nil || out == nil {
		return nil, err
	}

	var raw rawTransferResult
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse transfer dialog result: %w", err)
	}

	return &TransferResult{
		DoneMap: sanitizeDoneMap(raw.DoneMap),
		Comment: raw.Comment,
	}, nil
}

func (d *CommandDialog) invoke(ctx context.Context, kind string, req any) ([]byte, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dialog request: %w", err)
	}

	args := make([]string, 0, len(d.argv)+1)
	args = append(args, d.argv[1:]...)
	args = append(args, kind, string(reqJSON))

	out, err := d.exec.Output(ctx, d.argv[0], args...)
	if err != nil {
		return nil, fmt.Errorf("dialog command failed: %w", err)
	}

	out = []byte(strings.TrimSpace(string(out)))
	if len(out) == 0 {
		// cancel
		return nil, nil
	}
	return out, nil
}

// sanitizeDoneMap keeps only entries with a positive integer quantity.
// Any negative or non-integer value poisons the whole mapping: the caller
// then sees an empty map and prompts the operator again.
func sanitizeDoneMap(raw map[string]json.Number) map[string]int {
	done := make(map[string]int, len(raw))
	for size, num := range raw {
		qty, err := num.Int64()
		if err != nil || qty < 0 {
			log.Warn().Str("size", size).Str("qty", num.String()).Msg("invalid quantity in dialog result")
			return map[string]int{}
		}
		if qty > 0 {
			done[size] = int(qty)
		}
	}
	return done
}
