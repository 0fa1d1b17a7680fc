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

package speech

import (
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec // cache key, not a security boundary
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bellenne/scanserver/pkg/config"
	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Player plays one audio file, blocking until playback has finished and
// the output device is released.
type Player interface {
	PlayFile(path string) error
}

type synthRequest struct {
	text string
	dst  string
	resp chan error
}

// CloudEngine synthesizes phrases through a network service and keeps the
// resulting audio in a disk cache keyed by voice, rate and text. Synthesis
// runs on one long-lived worker goroutine rather than per call.
type CloudEngine struct {
	player    Player
	http      *http.Client
	requests  chan synthRequest
	closing   chan struct{}
	done      chan struct{}
	synthURL  string
	voice     string
	rate      string
	cacheDir  string
	closeOnce sync.Once
	genMu     syncutil.Mutex // one synthesis per uncached phrase
}

// NewCloudEngine fails fast when the engine cannot possibly work (no
// synthesis URL, unusable cache dir), which triggers the local fallback.
func NewCloudEngine(cfg config.Speech, player Player) (*CloudEngine, error) {
	if cfg.SynthURL == "" {
		return nil, errors.New("no synthesis URL configured")
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create speech cache dir: %w", err)
	}

	e := &CloudEngine{
		player:   player,
		http:     &http.Client{},
		synthURL: cfg.SynthURL,
		voice:    cfg.Voice,
		rate:     cfg.Rate,
		cacheDir: cfg.CacheDir,
		requests: make(chan synthRequest),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go e.synthWorker()
	return e, nil
}

func (e *CloudEngine) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	cachePath := e.cachePath(text)
	if fileExists(cachePath) {
		return e.player.PlayFile(cachePath)
	}

	e.genMu.Lock()
	// the file may have appeared while waiting for the lock
	if !fileExists(cachePath) {
		if err := e.synthesizeToCache(text, cachePath); err != nil {
			e.genMu.Unlock()
			return err
		}
	}
	e.genMu.Unlock()

	return e.player.PlayFile(cachePath)
}

// Close stops the synthesis worker. Cached audio stays on disk.
func (e *CloudEngine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closing)
		<-e.done
		e.http.CloseIdleConnections()
	})
	return nil
}

// cachePath derives the cache file name from voice, rate and text, so a
// changed voice or rate never replays stale audio.
func (e *CloudEngine) cachePath(text string) string {
	h := sha1.New() //nolint:gosec // cache key, not a security boundary
	h.Write([]byte(e.voice))
	h.Write([]byte{0})
	h.Write([]byte(e.rate))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return filepath.Join(e.cacheDir, hex.EncodeToString(h.Sum(nil))+".mp3")
}

func (e *CloudEngine) synthesizeToCache(text, cachePath string) error {
	tmpPath := filepath.Join(e.cacheDir, "tmp-"+uuid.New().String()+".mp3")

	req := synthRequest{text: text, dst: tmpPath, resp: make(chan error, 1)}
	select {
	case e.requests <- req:
	case <-e.closing:
		return errors.New("speech engine closed")
	}
	select {
	case err := <-req.resp:
		if err != nil {
			return err
		}
	case <-e.done:
		return errors.New("speech engine closed")
	}

	// Promote atomically; cross-device rename falls back to copy+delete.
	if err := os.Rename(tmpPath, cachePath); err != nil {
		if copyErr := copyFile(tmpPath, cachePath); copyErr != nil {
			return fmt.Errorf("failed to place cached audio: %w", copyErr)
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			log.Warn().Err(rmErr).Msg("failed to remove temp audio file")
		}
	}
	return nil
}

func (e *CloudEngine) synthWorker() {
	defer close(e.done)
	for {
		select {
		case req := <-e.requests:
			req.resp <- e.synthesize(req.text, req.dst)
		case <-e.closing:
			return
		}
	}
}

// synthesize POSTs the phrase to the synthesis service and writes the
// returned audio to dst.
func (e *CloudEngine) synthesize(text, dst string) error {
	body, err := json.Marshal(map[string]string{
		"text":  text,
		"voice": e.voice,
		"rate":  e.rate,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		context.Background(), http.MethodPost, e.synthURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close synthesis response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("synthesis service returned status %d", resp.StatusCode)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close audio file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src) //nolint:gosec // paths are engine-owned
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return nil
}
