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
	"strconv"

	"github.com/bellenne/scanserver/pkg/ui"
	"github.com/rs/zerolog/log"
)

// TransferMode reports transferred quantities per size. The scan opens the
// external transfer dialog on a detached goroutine.
type TransferMode struct{}

func (*TransferMode) OnScan(s Session, payload string) {
	if _, ok := s.UserID(); !ok {
		s.Say("Сначала выберите пользователя")
		return
	}

	s.Say("QR принят. Заполните перенос.")
	go transferFlow(s, payload)
}

func transferFlow(s Session, payload string) {
	result := collectTransfer(s, payload, "Отчётность переноса", false)
	if result == nil {
		return
	}

	err := s.PostEvent("done", payload, map[string]any{"done_map": result.DoneMap}, s.Endpoints().Transfer)
	if err != nil {
		log.Warn().Err(err).Str("device", s.DeviceID()).Msg("transfer post failed")
		reportSendError(s, err)
		return
	}

	s.Say("Отправлено")
}

// collectTransfer runs the transfer dialog and applies the shared result
// gates. It returns nil after having spoken the appropriate message when
// the flow should stop.
func collectTransfer(s Session, payload, title string, withComment bool) *ui.TransferResult {
	userID, ok := s.UserID()
	if !ok {
		s.Say("Сначала выберите пользователя")
		return nil
	}

	userName := s.UserName()
	if userName == "" {
		userName = strconv.Itoa(userID)
	}

	result, err := s.Dialog().CollectTransfer(detachCtx(), ui.TransferRequest{
		Title:       title,
		Payload:     payload,
		UserName:    userName,
		DeviceID:    s.DeviceID(),
		WithComment: withComment,
	})
	if err != nil {
		log.Warn().Err(err).Str("device", s.DeviceID()).Msg("transfer dialog failed")
		s.Say("Ошибка отправки")
		return nil
	}
	if result == nil {
		s.Say("Отменено")
		return nil
	}
	if len(result.DoneMap) == 0 {
		s.Say("Заполните размеры")
		return nil
	}
	return result
}
