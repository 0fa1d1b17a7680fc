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

// Package backend implements the HTTP client for the production-tracking
// backend: user lookup, the cached bulk user list, and event submission.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bellenne/scanserver/pkg/config"
	"github.com/rs/zerolog/log"
)

// ErrNetwork marks connect, timeout and other transport-level failures.
// Callers report it to the operator as a missing server connection and leave
// session state unchanged.
var ErrNetwork = errors.New("no connection to server")

// ErrInvalidUser marks a user lookup the backend rejected as bad input
// (HTTP 400, 404 or 422).
var ErrInvalidUser = errors.New("invalid user id")

// StatusError is any other non-2xx backend response. The body carries
// backend-side validation detail and is surfaced only to logs.
type StatusError struct {
	Body string
	Code int
}

func (e *StatusError) Error() string {
	return "backend returned status " + strconv.Itoa(e.Code)
}

// User is the backend's user object, as returned by /api/v1/users.
type User struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Event is one scan event submitted to the backend. Extra holds the
// mode-specific fields (qty, panels, done_map, reason) merged into the
// top-level JSON object.
type Event struct {
	Extra    map[string]any `json:"-"`
	Payload  string         `json:"payload"`
	Action   string         `json:"action"`
	DeviceID string         `json:"device_id"`
	ClientTS string         `json:"client_ts"`
	UserID   int            `json:"user_id"`
}

// MarshalJSON flattens Extra into the event object itself, which is the
// shape the backend's validation rules expect.
func (e *Event) MarshalJSON() ([]byte, error) {
	body := map[string]any{
		"payload":   e.Payload,
		"action":    e.Action,
		"user_id":   e.UserID,
		"device_id": e.DeviceID,
		"client_ts": e.ClientTS,
	}
	for k, v := range e.Extra {
		body[k] = v
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// authTransport injects optional bearer or basic credentials into every
// backend request.
type authTransport struct {
	base     http.RoundTripper
	bearer   string
	username string
	password string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+t.bearer)
	} else if t.username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(t.username + ":" + t.password))
		req.Header.Set("Authorization", "Basic "+auth)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP round trip: %w", err)
	}
	return resp, nil
}

// defaultTransport provides connection pooling and reasonable timeouts.
var defaultTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ResponseHeaderTimeout: 30 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
}

// Client talks to the tracking backend. All methods classify failures into
// the ErrNetwork / ErrInvalidUser / StatusError taxonomy.
type Client struct {
	http    *http.Client
	baseURL string
}

func NewClient(cfg config.Backend) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http: &http.Client{
			Timeout: time.Duration(cfg.HTTPTimeoutS * float64(time.Second)),
			Transport: &authTransport{
				base:     defaultTransport,
				bearer:   cfg.Bearer,
				username: cfg.Username,
				password: cfg.Password,
			},
		},
	}
}

// Close releases pooled connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// GetUser fetches one user by id. Backend input-validation statuses map to
// ErrInvalidUser, everything else non-2xx to StatusError.
func (c *Client) GetUser(ctx context.Context, userID int) (*User, error) {
	url := fmt.Sprintf("%s/api/v1/users/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer closeBody(resp)

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("%w: status %d", ErrInvalidUser, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, newStatusError(resp)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user response: %w", err)
	}
	return &user, nil
}

// GetUsers fetches the full user list.
func (c *Client) GetUsers(ctx context.Context) ([]User, error) {
	url := c.baseURL + "/api/v1/users/"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build users request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError(resp)
	}

	var users []User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("failed to decode users response: %w", err)
	}
	return users, nil
}

// PostEvent submits one scan event to path on the backend.
func (c *Client) PostEvent(ctx context.Context, path string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	url := c.baseURL + path
	log.Debug().Str("url", url).RawJSON("body", body).Msg("posting event")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := newStatusError(resp)
		log.Warn().
			Int("status", statusErr.Code).
			Str("url", url).
			Str("body", statusErr.Body).
			Msg("backend rejected event")
		return statusErr
	}
	return nil
}

func newStatusError(resp *http.Response) *StatusError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		body = []byte("<no body>")
	}
	return &StatusError{Code: resp.StatusCode, Body: string(body)}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close response body")
	}
}
