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

// Package ui defines the modal data-entry dialog boundary used by the
// defect and transfer workflows. The dialog itself is external to the
// service; this package only fixes its contract and ships an
// external-command implementation.
package ui

import (
	"context"
	"errors"
)

// ErrNoDialog is returned by NoDialog for every collection attempt.
var ErrNoDialog = errors.New("no dialog configured")

// DefectRequest describes the defect dialog shown to the operator.
type DefectRequest struct {
	Payload  string `json:"payload"`
	UserName string `json:"user_name"`
	DeviceID string `json:"device_id"`
}

// DefectResult is what the operator entered. ProductType is "tshirt" or
// "wallpaper"; Numbers carries either a quantity or a comma-separated
// panel list, exactly as typed.
type DefectResult struct {
	ProductType string `json:"product_type"`
	Numbers     string `json:"numbers"`
	Comment     string `json:"comment"`
}

// TransferRequest describes the size-quantity dialog shown to the operator.
type TransferRequest struct {
	Title       string `json:"title"`
	Payload     string `json:"payload"`
	UserName    string `json:"user_name"`
	DeviceID    string `json:"device_id"`
	WithComment bool   `json:"with_comment"`
}

// TransferResult is the entered size-to-quantity mapping. Only entries with
// quantity > 0 survive the boundary; a negative or non-integer quantity
// invalidates the whole mapping before a mode handler ever sees it.
type TransferResult struct {
	DoneMap map[string]int `json:"done_map"`
	Comment string         `json:"comment"`
}

// Dialog is the modal data-entry boundary. A nil result with nil error
// means the operator canceled.
type Dialog interface {
	CollectDefect(ctx context.Context, req DefectRequest) (*DefectResult, error)
	CollectTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// NoDialog stands in when no dialog command is configured; every
// collection fails with ErrNoDialog so the workflows report it instead
// of blocking.
type NoDialog struct{}

func (NoDialog) CollectDefect(context.Context, DefectRequest) (*DefectResult, error) {
	return nil, ErrNoDialog
}

func (NoDialog) CollectTransfer(context.Context, TransferRequest) (*TransferResult, error) {
	return nil, ErrNoDialog
}
