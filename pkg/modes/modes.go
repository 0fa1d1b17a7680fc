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

// Package modes implements the scan-interpretation strategies a device can
// be switched between: two-scan compare-fill, defect reporting, transfer
// and transfer-defect.
package modes

import (
	"context"
	"errors"

	"github.com/bellenne/scanserver/pkg/backend"
	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/ui"
	"github.com/jonboulle/clockwork"
)

// Mode names, as accepted on the service-command channel and persisted in
// the device state record.
const (
	CompareFill    = "COMPARE_FILL"
	Defect         = "DEFECT"
	Transfer       = "TRANSFER"
	TransferDefect = "TRANSFER_DEFECT"
)

// ValidMode reports whether name is one of the four known mode names.
func ValidMode(name string) bool {
	switch name {
	case CompareFill, Defect, Transfer, TransferDefect:
		return true
	}
	return false
}

// Session is the slice of a device session a mode handler needs: speech
// output, user identity, event submission and the dialog boundary.
type Session interface {
	DeviceID() string
	Say(text string)
	UserID() (int, bool)
	UserName() string
	// PostEvent submits a backend event. An empty endpoint means the
	// mode-default events endpoint.
	PostEvent(action, payload string, extra map[string]any, endpoint string) error
	Endpoints() config.Endpoints
	Dialog() ui.Dialog
}

// Handler consumes one scan payload in the context of a session.
type Handler interface {
	OnScan(s Session, payload string)
}

// NewHandlers builds the full handler set shared by all device sessions,
// keyed by mode name.
func NewHandlers(clock clockwork.Clock) map[string]Handler {
	return map[string]Handler{
		CompareFill:    NewCompareFillMode(clock),
		Defect:         &DefectMode{},
		Transfer:       &TransferMode{},
		TransferDefect: &TransferDefectMode{},
	}
}

// detachCtx is the context detached dialog flows run under. They are not
// cancelled on shutdown, only abandoned at process exit.
func detachCtx() context.Context {
	return context.Background()
}

// reportSendError voices a failed event submission per the error taxonomy:
// transport failures as a missing connection, everything else as a send
// error. Backend rejection detail stays in the logs.
func reportSendError(s Session, err error) {
	if errors.Is(err, backend.ErrNetwork) {
		s.Say("Нет соединения с сервером")
		return
	}
	s.Say("Ошибка отправки")
}
