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

// Package testutils provides a mock serial port and channel assertions
// for line reader tests.
package testutils

import (
	"errors"
	"testing"
	"time"

	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/stretchr/testify/require"
)

// MockSerialPort is a mock serial connection. It supports a custom read
// function, error injection and buffered data reading.
type MockSerialPort struct {
	ReadError  error
	CloseError error
	TimeoutErr error
	ReadFunc   func(p []byte) (n int, err error)
	ReadData   []byte
	ReadIndex  int
	Closed     bool
	mu         syncutil.RWMutex // protects Closed
}

func NewMockSerialPort() *MockSerialPort {
	return &MockSerialPort{}
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	m.mu.RLock()
	closed := m.Closed
	m.mu.RUnlock()

	if closed {
		return 0, errors.New("port closed")
	}

	if m.ReadFunc != nil {
		return m.ReadFunc(p)
	}

	if m.ReadError != nil {
		return 0, m.ReadError
	}

	if m.ReadIndex >= len(m.ReadData) {
		// Simulate a read timeout with no data
		time.Sleep(10 * time.Millisecond)
		return 0, nil
	}

	n = copy(p, m.ReadData[m.ReadIndex:])
	m.ReadIndex += n
	return n, nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	m.Closed = true
	closeError := m.CloseError
	m.mu.Unlock()
	return closeError
}

func (m *MockSerialPort) SetReadTimeout(_ time.Duration) error {
	return m.TimeoutErr
}

// IsClosed reports whether the port has been closed (thread-safe).
func (m *MockSerialPort) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Closed
}

// AssertLineReceived waits for a line on ch within timeout and returns it.
func AssertLineReceived(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case line := <-ch:
		return line
	case <-time.After(timeout):
		require.Fail(t, "expected line to be received within timeout", "timeout: %v", timeout)
		return ""
	}
}

// AssertNoLine verifies that nothing arrives on ch within timeout.
func AssertNoLine(t *testing.T, ch <-chan string, timeout time.Duration) {
	t.Helper()
	select {
	case line := <-ch:
		require.Fail(t, "unexpected line received", "line: %s", line)
	case <-time.After(timeout):
		// Expected - no line received
	}
}
