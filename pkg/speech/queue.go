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

// Package speech serializes spoken feedback from every device through one
// worker and one synthesis engine, so messages never overlap.
package speech

import (
	"strings"

	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

// Engine synthesizes and plays one phrase, blocking until the audio has
// finished.
type Engine interface {
	Speak(text string) error
	Close() error
}

// Queue is the single serialized sink for all spoken feedback. Say is
// non-blocking and messages play strictly in enqueue order across all
// producers.
type Queue struct {
	engine Engine
	tasks  chan string
	done   chan struct{}
	mu     syncutil.RWMutex // protects closed
	closed bool
}

// NewQueue starts the consuming worker immediately.
func NewQueue(engine Engine) *Queue {
	q := &Queue{
		engine: engine,
		tasks:  make(chan string, 128),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

// Say enqueues text for playback. It never blocks: when the queue is
// backed up the message is dropped with a log entry, and after Stop it is
// a no-op.
func (q *Queue) Say(text string) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.tasks <- text:
	default:
		log.Warn().Str("text", text).Msg("speech queue full, dropping message")
	}
}

// Stop drains the queue, joins the worker and closes the engine. Safe to
// call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	<-q.done

	if err := q.engine.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close speech engine")
	}
}

func (q *Queue) worker() {
	defer close(q.done)
	for text := range q.tasks {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := q.engine.Speak(text); err != nil {
			log.Warn().Err(err).Str("text", text).Msg("speech failed")
		}
	}
}
