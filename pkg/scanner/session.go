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

// Package scanner owns the per-device machinery: the serial line reader,
// the service-command parser, the device session state machine and the
// session manager.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bellenne/scanserver/pkg/backend"
	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/helpers"
	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/bellenne/scanserver/pkg/modes"
	"github.com/bellenne/scanserver/pkg/statestore"
	"github.com/bellenne/scanserver/pkg/ui"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	idleTimeout      = 1 * time.Minute
	idlePollInterval = 5 * time.Second
)

// ErrNoUser marks a programming error: an event was built while no user
// was authenticated. Mode handlers gate on the user before posting, so
// hitting this is a bug, not an operator condition.
var ErrNoUser = errors.New("user is not set for this device")

// Speaker is the speech sink sessions enqueue messages on.
type Speaker interface {
	Say(text string)
}

// Backend is the slice of the backend client a session uses.
type Backend interface {
	GetUser(ctx context.Context, userID int) (*backend.User, error)
	PostEvent(ctx context.Context, path string, event *backend.Event) error
}

// Session binds the live state of one physical scanner: user identity,
// operating mode, idle watchdog and the bridge from serial lines to mode
// handlers. All state mutations, whether from the reader goroutine or a
// detached dialog flow, are serialized by the session mutex.
type Session struct {
	clock        clockwork.Clock
	api          Backend
	store        statestore.Store
	speech       Speaker
	dialog       ui.Dialog
	handlers     map[string]modes.Handler
	reader       *LineReader
	stopCh       chan struct{}
	lastActivity *time.Time
	userID       *int
	deviceID     string
	comPort      string
	userName     string
	mode         string
	endpoints    config.Endpoints
	wg           sync.WaitGroup
	stopOnce     sync.Once
	mu           syncutil.Mutex
}

// SessionDeps carries the shared collaborators a session needs.
type SessionDeps struct {
	API       Backend
	Store     statestore.Store
	Speech    Speaker
	Dialog    ui.Dialog
	Clock     clockwork.Clock
	Handlers  map[string]modes.Handler
	Endpoints config.Endpoints
}

func NewSession(device config.Device, deps SessionDeps) *Session {
	s := &Session{
		deviceID:  device.DeviceID,
		comPort:   device.ComPort,
		api:       deps.API,
		store:     deps.Store,
		speech:    deps.Speech,
		dialog:    deps.Dialog,
		clock:     deps.Clock,
		handlers:  deps.Handlers,
		endpoints: deps.Endpoints,
		mode:      modes.CompareFill,
		stopCh:    make(chan struct{}),
	}

	// User identity is never restored from disk without a fresh lookup;
	// only the mode survives a restart.
	if rec, ok := deps.Store.Load(device.DeviceID); ok {
		if modes.ValidMode(rec.Mode) {
			s.mode = rec.Mode
		} else if rec.Mode != "" {
			log.Warn().
				Str("device", device.DeviceID).
				Str("mode", rec.Mode).
				Msg("unknown persisted mode, falling back to COMPARE_FILL")
		}
	}

	s.reader = NewLineReader(device.ComPort, device.BaudRate, s.HandleLine, deps.Clock)
	return s
}

// Start launches the reader and idle-watchdog goroutines and announces the
// session over speech.
func (s *Session) Start() {
	log.Info().Str("device", s.deviceID).Str("port", s.comPort).Msg("starting session")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.reader.Run()
	}()
	go func() {
		defer s.wg.Done()
		s.idleWatchdog()
	}()

	s.Say(fmt.Sprintf("Сканер %s запущен. Ожидаю пользователя.", s.deviceID))
}

// Stop is idempotent; it halts the reader and the watchdog. Detached
// dialog flows are left to finish on their own.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.reader.Stop()
	})
}

// Wait blocks until the reader and watchdog goroutines have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) DeviceID() string {
	return s.deviceID
}

// Say prefixes every message with the device id so the operator knows
// which scanner is talking, then enqueues it. It takes no locks; callers
// holding s.mu may use it.
func (s *Session) Say(text string) {
	if text == "" {
		return
	}
	s.speech.Say(s.deviceID + ". " + text)
}

func (s *Session) UserID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == nil {
		return 0, false
	}
	return *s.userID, true
}

func (s *Session) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userName
}

func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Endpoints() config.Endpoints {
	return s.endpoints
}

func (s *Session) Dialog() ui.Dialog {
	return s.dialog
}

// HandleLine routes one line from the serial reader: service commands
// mutate session state, anything else is a scan payload for the active
// mode handler.
func (s *Session) HandleLine(line string) {
	log.Info().Str("device", s.deviceID).Str("line", line).Msg("line received")

	switch cmd := ParseServiceCommand(line).(type) {
	case UserCommand:
		s.SetUser(cmd.UserID)
		return
	case ModeCommand:
		s.SetMode(cmd.Mode)
		return
	}

	if _, ok := s.UserID(); !ok {
		s.Say("Сначала выберите пользователя")
		return
	}

	s.mu.Lock()
	handler := s.handlers[s.mode]
	s.mu.Unlock()
	if handler == nil {
		log.Error().Str("device", s.deviceID).Str("mode", s.Mode()).Msg("no handler for mode")
		return
	}

	handler.OnScan(s, line)
	s.touchActivity()
}

// SetUser implements the user-select algorithm: selecting the current user
// again toggles it off, anything else is validated against the backend
// before being committed.
func (s *Session) SetUser(userID int) {
	s.mu.Lock()
	if s.userID != nil && *s.userID == userID {
		s.clearUserLocked("toggle")
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	user, err := s.api.GetUser(context.Background(), userID)
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrInvalidUser):
		log.Warn().Err(err).Str("device", s.deviceID).Int("user_id", userID).Msg("user rejected")
		s.Say("Неверный id пользователя")
		return
	default:
		log.Warn().Err(err).Str("device", s.deviceID).Int("user_id", userID).Msg("user lookup failed")
		s.Say("Нет соединения с сервером")
		return
	}

	if user.ID != userID || user.Name == "" {
		log.Warn().
			Str("device", s.deviceID).
			Int("want", userID).
			Int("got", user.ID).
			Msg("user lookup returned unexpected data")
		s.Say("Неверный id пользователя")
		return
	}

	s.mu.Lock()
	s.userID = &userID
	s.userName = user.Name
	now := s.clock.Now()
	s.lastActivity = &now
	s.persistLocked()
	s.mu.Unlock()

	s.Say("Пользователь: " + user.Name)
	log.Info().Str("device", s.deviceID).Int("user_id", userID).Msg("user set")
}

// ClearUser removes the authenticated user and persists the change.
func (s *Session) ClearUser() {
	s.mu.Lock()
	s.clearUserLocked("manual")
	s.mu.Unlock()
}

func (s *Session) clearUserLocked(reason string) {
	s.userID = nil
	s.userName = ""
	s.persistLocked()
	s.Say("Пользователь снят")
	log.Info().Str("device", s.deviceID).Str("reason", reason).Msg("user cleared")
}

// SetMode switches the scan-interpretation mode and confirms it by voice.
func (s *Session) SetMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.persistLocked()
	s.mu.Unlock()

	spoken := map[string]string{
		modes.CompareFill:    "рЕзка",
		modes.Defect:         "Брак рЕзки",
		modes.Transfer:       "Перенос",
		modes.TransferDefect: "Брак переноса",
	}
	s.Say("Режим " + spoken[mode])
	log.Info().Str("device", s.deviceID).Str("mode", mode).Msg("mode set")
}

// PostEvent builds and submits one backend event for the current user.
func (s *Session) PostEvent(action, payload string, extra map[string]any, endpoint string) error {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()

	if userID == nil {
		log.Error().Str("device", s.deviceID).Str("action", action).Msg("event built without a user")
		return ErrNoUser
	}

	event := &backend.Event{
		Payload:  payload,
		Action:   action,
		UserID:   *userID,
		DeviceID: s.deviceID,
		ClientTS: helpers.ISOLocal(s.clock.Now()),
		Extra:    extra,
	}

	path := endpoint
	if path == "" {
		path = s.endpoints.Events
	}

	if err := s.api.PostEvent(context.Background(), path, event); err != nil {
		return fmt.Errorf("failed to post %s event: %w", action, err)
	}
	return nil
}

// touchActivity refreshes the idle-watchdog timestamp. Without a user
// there is nothing to log out, so it is a no-op.
func (s *Session) touchActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == nil {
		return
	}
	now := s.clock.Now()
	s.lastActivity = &now
}

// idleWatchdog clears an authenticated user after prolonged inactivity.
// The activity timestamp is nilled after firing so it fires exactly once
// per authenticated stretch.
func (s *Session) idleWatchdog() {
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.clock.After(idlePollInterval):
		}

		s.mu.Lock()
		if s.userID != nil && s.lastActivity != nil &&
			s.clock.Now().Sub(*s.lastActivity) >= idleTimeout {
			s.userID = nil
			s.userName = ""
			s.lastActivity = nil
			s.persistLocked()
			s.Say("Пользователь снят по таймауту")
			log.Info().Str("device", s.deviceID).Msg("user auto-cleared by idle timeout")
		}
		s.mu.Unlock()
	}
}

// persistLocked rewrites the full device record. Callers hold s.mu.
func (s *Session) persistLocked() {
	rec := statestore.Record{
		UserID:   s.userID,
		UserName: s.userName,
		Mode:     s.mode,
		ComPort:  s.comPort,
	}
	s.store.Save(s.deviceID, rec)
}
