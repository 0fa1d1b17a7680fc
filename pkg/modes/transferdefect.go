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

	"github.com/rs/zerolog/log"
)

// TransferDefectMode reports defective transferred items: same size
// mapping as TransferMode plus a mandatory comment, submitted as a defect.
type TransferDefectMode struct{}

func (*TransferDefectMode) OnScan(s Session, payload string) {
	if _, ok := s.UserID(); !ok {
		s.Say("Сначала выберите пользователя")
		return
	}

	s.Say("QR принят. Заполните дефект переноса.")
	go transferDefectFlow(s, payload)
}

func transferDefectFlow(s Session, payload string) {
	result := collectTransfer(s, payload, "Брак переноса", true)
	if result == nil {
		return
	}

	extra := map[string]any{"done_map": result.DoneMap}
	if comment := strings.TrimSpace(result.Comment); comment != "" {
		extra["reason"] = comment
	}

	err := s.PostEvent("defect", payload, extra, s.Endpoints().Transfer)
	if err != nil {
		log.Warn().Err(err).Str("device", s.DeviceID()).Msg("transfer defect post failed")
		reportSendError(s, err)
		return
	}

	s.Say("Отправлено")
}
