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

package scanner

import (
	"strings"
	"sync"
	"time"

	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// maxLineSize caps a single scan line (QR Code v40 tops out around 7KB).
const maxLineSize = 8192

const defaultReconnectDelay = 1500 * time.Millisecond

// LineReader owns one serial connection and delivers trimmed, non-empty
// text lines to a callback until stopped. Any I/O failure closes the port
// and retries after a fixed delay; the loop only terminates on Stop.
type LineReader struct {
	clock          clockwork.Clock
	onLine         func(string)
	portFactory    SerialPortFactory
	stopCh         chan struct{}
	port           SerialPort
	path           string
	reconnectDelay time.Duration
	baudRate       int
	stopOnce       sync.Once
	mu             syncutil.Mutex // protects port
}

func NewLineReader(path string, baudRate int, onLine func(string), clock clockwork.Clock) *LineReader {
	return &LineReader{
		path:           path,
		baudRate:       baudRate,
		onLine:         onLine,
		clock:          clock,
		portFactory:    DefaultSerialPortFactory,
		reconnectDelay: defaultReconnectDelay,
		stopCh:         make(chan struct{}),
	}
}

// Run blocks, reading lines and reconnecting on failure, until Stop is
// called. Intended to run on its own goroutine.
func (r *LineReader) Run() {
	for {
		if r.stopped() {
			return
		}

		if err := r.connect(); err != nil {
			log.Warn().Err(err).Str("path", r.path).Msg("failed to open serial port")
		} else {
			r.readLoop()
			r.closePort()
		}

		select {
		case <-r.stopCh:
			return
		case <-r.clock.After(r.reconnectDelay):
		}
	}
}

// Stop is idempotent. It interrupts both a blocked read (by closing the
// port out from under it) and the reconnect wait.
func (r *LineReader) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.closePort()
	})
}

func (r *LineReader) stopped() bool {
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

func (r *LineReader) connect() error {
	log.Info().Str("path", r.path).Int("baud", r.baudRate).Msg("connecting serial port")

	port, err := r.portFactory(r.path, &serial.Mode{
		BaudRate: r.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return err
	}

	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		if closeErr := port.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close serial port")
		}
		return err
	}

	r.mu.Lock()
	r.port = port
	r.mu.Unlock()
	return nil
}

func (r *LineReader) closePort() {
	r.mu.Lock()
	port := r.port
	r.port = nil
	r.mu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil {
			log.Warn().Err(err).Str("path", r.path).Msg("failed to close serial port")
		}
	}
}

// readLoop reads until a port error or Stop. Returning hands control back
// to Run, which reconnects.
func (r *LineReader) readLoop() {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return
	}

	buf := make([]byte, 1024)
	var lineBuf []byte
	overflowed := false

	for {
		if r.stopped() {
			return
		}

		n, err := port.Read(buf)

		// Process any bytes read, even if the read also errored
		for i := range n {
			b := buf[i]

			// Some scanners terminate with \r only
			if b == '\n' || b == '\r' {
				if overflowed {
					overflowed = false
					lineBuf = lineBuf[:0]
					continue
				}
				if len(lineBuf) > 0 {
					line := cleanLine(string(lineBuf))
					lineBuf = lineBuf[:0]
					if line != "" {
						r.onLine(line)
					}
				}
				continue
			}

			if overflowed {
				continue
			}
			if len(lineBuf) >= maxLineSize {
				log.Warn().Str("path", r.path).Msg("line overflow, discarding data until next delimiter")
				lineBuf = lineBuf[:0]
				overflowed = true
				continue
			}
			lineBuf = append(lineBuf, b)
		}

		if err != nil {
			log.Warn().Err(err).Str("path", r.path).Msg("serial read failed")
			return
		}
	}
}

// cleanLine trims whitespace and POS-style STX/ETX framing, and strips any
// bytes that don't decode as UTF-8 rather than failing the line.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "\x02") // STX
	line = strings.TrimSuffix(line, "\x03") // ETX
	line = strings.ToValidUTF8(line, "")
	return strings.TrimSpace(line)
}
