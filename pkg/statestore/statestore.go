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

// Package statestore persists per-device session records between restarts.
// A missing or corrupt state file is never fatal: it loads as empty, and
// write failures are logged and swallowed so persistence problems can never
// take down a scanning session.
package statestore

import (
	"encoding/json"
	"os"

	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Record is the persisted state of one device, rewritten wholesale on every
// session mutation.
type Record struct {
	UserID   *int   `json:"user_id"`
	UserName string `json:"user_name"`
	Mode     string `json:"mode"`
	ComPort  string `json:"com_port"`
}

// Store is the per-device handle sessions use to persist their state.
type Store interface {
	Load(deviceID string) (Record, bool)
	Save(deviceID string, rec Record)
}

type fileData struct {
	Devices map[string]Record `json:"devices"`
}

// FileStore keeps every device's record in a single JSON file. All devices
// share the file, so reads and writes are serialized by a mutex.
type FileStore struct {
	data fileData
	path string
	mu   syncutil.Mutex
}

// NewFileStore loads the state file at path, treating absence or corruption
// as an empty store.
func NewFileStore(path string) *FileStore {
	s := &FileStore{
		path: path,
		data: fileData{Devices: make(map[string]Record)},
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("failed to read state file")
		}
		return s
	}

	var loaded fileData
	if err := json.Unmarshal(raw, &loaded); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to parse state file, starting empty")
		return s
	}
	if loaded.Devices != nil {
		s.data = loaded
	}
	return s
}

func (s *FileStore) Load(deviceID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data.Devices[deviceID]
	return rec, ok
}

func (s *FileStore) Save(deviceID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Devices[deviceID] = rec

	raw, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal state")
		return
	}
	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to write state file")
	}
}
