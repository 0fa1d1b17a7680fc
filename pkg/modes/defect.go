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
	"strings"

	"github.com/bellenne/scanserver/pkg/ui"
	"github.com/rs/zerolog/log"
)

// DefectMode reports a defective item. The scan opens the external defect
// dialog on a detached goroutine so the reader keeps accepting lines.
type DefectMode struct{}

func (*DefectMode) OnScan(s Session, payload string) {
	// user gate already sits in the session routing, but double-check
	if _, ok := s.UserID(); !ok {
		s.Say("Сначала выберите пользователя")
		return
	}

	s.Say("QR принят. Заполните дефект.")
	go defectFlow(s, payload)
}

func defectFlow(s Session, payload string) {
	userID, ok := s.UserID()
	if !ok {
		s.Say("Сначала выберите пользователя")
		return
	}

	userName := s.UserName()
	if userName == "" {
		userName = strconv.Itoa(userID)
	}

	result, err := s.Dialog().CollectDefect(detachCtx(), ui.DefectRequest{
		Payload:  payload,
		UserName: userName,
		DeviceID: s.DeviceID(),
	})
	if err != nil {
		log.Warn().Err(err).Str("device", s.DeviceID()).Msg("defect dialog failed")
		s.Say("Ошибка отправки")
		return
	}
	if result == nil {
		s.Say("Отменено")
		return
	}

	rawNumbers := strings.TrimSpace(result.Numbers)
	if rawNumbers == "" {
		s.Say("Заполните поле")
		return
	}

	extra := map[string]any{}
	if comment := strings.TrimSpace(result.Comment); comment != "" {
		extra["reason"] = comment
	}

	switch strings.TrimSpace(result.ProductType) {
	case "tshirt":
		qty, err := strconv.Atoi(rawNumbers)
		if err != nil || qty < 1 {
			s.Say("Неверное количество")
			return
		}
		extra["qty"] = qty
	case "wallpaper":
		panels := ParsePanels(rawNumbers)
		if len(panels) == 0 {
			s.Say("Неверные номера полотен")
			return
		}
		extra["panels"] = panels
	default:
		s.Say("Выберите тип изделия")
		return
	}

	err = s.PostEvent("defect", payload, extra, s.Endpoints().Defect)
	if err != nil {
		log.Warn().Err(err).Str("device", s.DeviceID()).Msg("defect post failed")
		reportSendError(s, err)
		return
	}

	s.Say("Отправлено")
}

// ParsePanels parses a comma-separated list of wallpaper panel numbers.
// Every token must be an integer in [1,99] or the whole list is rejected;
// duplicates are dropped, first occurrence order preserved.
func ParsePanels(s string) []int {
	cleaned := strings.ReplaceAll(s, " ", "")
	if cleaned == "" {
		return nil
	}

	seen := make(map[int]bool)
	var panels []int
	for _, tok := range strings.Split(cleaned, ",") {
		if tok == "" {
			continue
		}
		v, err := strconv.Atoi(tok)
		if err != nil || v < 1 || v > 99 {
			return nil
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		panels = append(panels, v)
	}
	return panels
}
