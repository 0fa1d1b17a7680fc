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
	"errors"
	"testing"
	"time"

	"github.com/bellenne/scanserver/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePanels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []int
	}{
		{name: "simple", in: "1,2,3", want: []int{1, 2, 3}},
		{name: "spaces_ignored", in: " 1 , 2 , 3 ", want: []int{1, 2, 3}},
		{name: "duplicates_dropped_order_kept", in: "3,1,3,2,1", want: []int{3, 1, 2}},
		{name: "empty_tokens_skipped", in: "1,,2,", want: []int{1, 2}},
		{name: "upper_bound", in: "99", want: []int{99}},
		{name: "zero_rejects_all", in: "0,5", want: nil},
		{name: "out_of_range_rejects_all", in: "1,100", want: nil},
		{name: "non_numeric_rejects_all", in: "1,x,3", want: nil},
		{name: "negative_rejects_all", in: "-1", want: nil},
		{name: "empty", in: "", want: nil},
		{name: "only_commas", in: ",,", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParsePanels(tt.in))
		})
	}
}

func TestDefectMode_OnScan(t *testing.T) {
	t.Parallel()

	t.Run("without_user_is_refused", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(&fakeDialog{})
		s.clearUser()

		(&DefectMode{}).OnScan(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("Сначала выберите пользователя"))
		assert.Empty(t, s.Posts())
	})

	t.Run("acknowledges_and_opens_dialog", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{} // nil result = cancel
		s := newFakeModeSession(dialog)

		(&DefectMode{}).OnScan(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("QR принят. Заполните дефект."))
		// the dialog flow is detached; wait for it to finish
		require.Eventually(t, func() bool {
			return s.SaidCount("Отменено") == 1
		}, time.Second, 5*time.Millisecond)
	})
}

func TestDefectFlow(t *testing.T) {
	t.Parallel()

	t.Run("tshirt_quantity_is_posted", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectResult: &ui.DefectResult{
			ProductType: "tshirt",
			Numbers:     "4",
			Comment:     "торн шов",
		}}
		s := newFakeModeSession(dialog)

		defectFlow(s, "ART-1|batch=2")

		posts := s.Posts()
		require.Len(t, posts, 1)
		assert.Equal(t, "defect", posts[0].action)
		assert.Equal(t, "ART-1|batch=2", posts[0].payload)
		assert.Equal(t, "/api/v1/defects/", posts[0].endpoint)
		assert.Equal(t, 4, posts[0].extra["qty"])
		assert.Equal(t, "торн шов", posts[0].extra["reason"])
		assert.Equal(t, 1, s.SaidCount("Отправлено"))

		dialog.mu.Lock()
		req := dialog.lastDefect
		dialog.mu.Unlock()
		require.NotNil(t, req)
		assert.Equal(t, "ART-1|batch=2", req.Payload)
		assert.Equal(t, "Иван", req.UserName)
		assert.Equal(t, "scanner-1", req.DeviceID)
	})

	t.Run("wallpaper_panels_are_posted", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectResult: &ui.DefectResult{
			ProductType: "wallpaper",
			Numbers:     "2, 5, 2",
		}}
		s := newFakeModeSession(dialog)

		defectFlow(s, "ART-1")

		posts := s.Posts()
		require.Len(t, posts, 1)
		assert.Equal(t, []int{2, 5}, posts[0].extra["panels"])
		_, hasReason := posts[0].extra["reason"]
		assert.False(t, hasReason, "empty comment stays out of the event")
	})

	t.Run("invalid_tshirt_quantity", func(t *testing.T) {
		t.Parallel()
		for _, qty := range []string{"0", "-2", "abc"} {
			dialog := &fakeDialog{defectResult: &ui.DefectResult{
				ProductType: "tshirt",
				Numbers:     qty,
			}}
			s := newFakeModeSession(dialog)

			defectFlow(s, "ART-1")

			assert.Equal(t, 1, s.SaidCount("Неверное количество"), "qty %q", qty)
			assert.Empty(t, s.Posts())
		}
	})

	t.Run("invalid_panel_numbers", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectResult: &ui.DefectResult{
			ProductType: "wallpaper",
			Numbers:     "1,100",
		}}
		s := newFakeModeSession(dialog)

		defectFlow(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("Неверные номера полотен"))
		assert.Empty(t, s.Posts())
	})

	t.Run("missing_product_type", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectResult: &ui.DefectResult{Numbers: "3"}}
		s := newFakeModeSession(dialog)

		defectFlow(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("Выберите тип изделия"))
		assert.Empty(t, s.Posts())
	})

	t.Run("empty_numbers", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectResult: &ui.DefectResult{
			ProductType: "tshirt",
			Numbers:     "   ",
		}}
		s := newFakeModeSession(dialog)

		defectFlow(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("Заполните поле"))
		assert.Empty(t, s.Posts())
	})

	t.Run("cancel", func(t *testing.T) {
		t.Parallel()
		s := newFakeModeSession(&fakeDialog{})

		defectFlow(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("Отменено"))
		assert.Empty(t, s.Posts())
	})

	t.Run("dialog_failure", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectErr: errors.New("helper crashed")}
		s := newFakeModeSession(dialog)

		defectFlow(s, "ART-1")

		assert.Equal(t, 1, s.SaidCount("Ошибка отправки"))
		assert.Empty(t, s.Posts())
	})

	t.Run("user_name_falls_back_to_id", func(t *testing.T) {
		t.Parallel()
		dialog := &fakeDialog{defectResult: &ui.DefectResult{
			ProductType: "tshirt",
			Numbers:     "1",
		}}
		s := newFakeModeSession(dialog)
		s.mu.Lock()
		s.userName = ""
		s.mu.Unlock()

		defectFlow(s, "ART-1")

		dialog.mu.Lock()
		req := dialog.lastDefect
		dialog.mu.Unlock()
		require.NotNil(t, req)
		assert.Equal(t, "42", req.UserName)
	})
}
