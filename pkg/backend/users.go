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

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	cache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

const usersCacheKey = "users"

// UsersLister is the slice of Client the cache needs.
type UsersLister interface {
	GetUsers(ctx context.Context) ([]User, error)
}

type usersSnapshot struct {
	Users []User `json:"users"`
	TS    int64  `json:"ts"`
}

// UsersCache layers a TTL memory cache and a JSON disk snapshot over the
// bulk user list, so restarts and short backend outages don't force a
// network round trip.
type UsersCache struct {
	api   UsersLister
	clock clockwork.Clock
	mem   *cache.Cache
	file  string
	ttl   time.Duration
}

func NewUsersCache(api UsersLister, file string, ttl time.Duration, clock clockwork.Clock) *UsersCache {
	return &UsersCache{
		api:   api,
		file:  file,
		ttl:   ttl,
		clock: clock,
		mem:   cache.New(ttl, 2*ttl),
	}
}

// Get returns the user list, preferring memory, then a fresh-enough disk
// snapshot, then the backend. A successful fetch refreshes both layers.
func (u *UsersCache) Get(ctx context.Context) ([]User, error) {
	if cached, ok := u.mem.Get(usersCacheKey); ok {
		if users, ok := cached.([]User); ok {
			return users, nil
		}
	}

	if snap := u.readSnapshot(); snap != nil {
		age := u.clock.Now().Unix() - snap.TS
		if age >= 0 && time.Duration(age)*time.Second <= u.ttl {
			u.mem.SetDefault(usersCacheKey, snap.Users)
			return snap.Users, nil
		}
	}

	return u.fetch(ctx)
}

// Refresh re-fetches the user list unconditionally, skipping both cache
// layers, so a still-valid memory entry cannot mask backend changes.
func (u *UsersCache) Refresh(ctx context.Context) error {
	_, err := u.fetch(ctx)
	return err
}

// KeepFresh re-fetches the list every interval until stop closes. A
// failed refresh is logged; the previous data keeps serving.
func (u *UsersCache) KeepFresh(interval time.Duration, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-u.clock.After(interval):
		}
		if err := u.Refresh(context.Background()); err != nil {
			log.Warn().Err(err).Msg("user list refresh failed")
		}
	}
}

func (u *UsersCache) fetch(ctx context.Context) ([]User, error) {
	users, err := u.api.GetUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user list: %w", err)
	}

	u.mem.SetDefault(usersCacheKey, users)
	u.writeSnapshot(&usersSnapshot{TS: u.clock.Now().Unix(), Users: users})
	return users, nil
}

// LastKnown returns the most recent user list available locally, however
// stale: memory first, then the disk snapshot with no freshness check. It
// never touches the network.
func (u *UsersCache) LastKnown() []User {
	if cached, ok := u.mem.Get(usersCacheKey); ok {
		if users, ok := cached.([]User); ok {
			return users
		}
	}
	if snap := u.readSnapshot(); snap != nil {
		return snap.Users
	}
	return nil
}

func (u *UsersCache) readSnapshot() *usersSnapshot {
	raw, err := os.ReadFile(u.file)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", u.file).Msg("failed to read users cache")
		}
		return nil
	}
	var snap usersSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		log.Warn().Err(err).Str("path", u.file).Msg("failed to parse users cache")
		return nil
	}
	return &snap
}

func (u *UsersCache) writeSnapshot(snap *usersSnapshot) {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("failed to marshal users cache")
		return
	}
	if err := os.WriteFile(u.file, raw, 0o600); err != nil {
		log.Warn().Err(err).Str("path", u.file).Msg("failed to write users cache")
	}
}

// CachedUserClient overlays offline user resolution on a Client: when a
// single-user lookup fails with a transport error, the last known user
// list answers instead, so operators can still log in through short
// backend outages.
type CachedUserClient struct {
	*Client
	users *UsersCache
}

func NewCachedUserClient(client *Client, users *UsersCache) *CachedUserClient {
	return &CachedUserClient{Client: client, users: users}
}

func (c *CachedUserClient) GetUser(ctx context.Context, userID int) (*User, error) {
	user, err := c.Client.GetUser(ctx, userID)
	if err == nil || !errors.Is(err, ErrNetwork) {
		return user, err
	}

	for _, known := range c.users.LastKnown() {
		if known.ID == userID {
			log.Warn().
				Int("user_id", userID).
				Msg("backend unreachable, user resolved from local cache")
			return &User{ID: known.ID, Name: known.Name}, nil
		}
	}
	return nil, err
}
