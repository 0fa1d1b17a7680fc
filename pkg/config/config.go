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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bellenne/scanserver/pkg/helpers/syncutil"
	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

const (
	SchemaVersion = 1
	CfgFile       = "scanserver.toml"
	CfgEnv        = "SCANSERVER_CFG"

	devBaseURL  = "http://localhost:8000"
	prodBaseURL = "https://customcraft-mes.ru"
)

type Values struct {
	Backend      Backend   `toml:"backend"`
	Endpoints    Endpoints `toml:"endpoints,omitempty"`
	State        State     `toml:"state,omitempty"`
	Users        Users     `toml:"users,omitempty"`
	Speech       Speech    `toml:"speech,omitempty"`
	Dialog       Dialog    `toml:"dialog,omitempty"`
	Devices      []Device  `toml:"devices,omitempty" validate:"dive"`
	ConfigSchema int       `toml:"config_schema"`
	DebugLogging bool      `toml:"debug_logging"`
}

type Backend struct {
	Env          string  `toml:"env" validate:"oneof=dev prod"`
	BaseURL      string  `toml:"base_url,omitempty"`
	HTTPTimeoutS float64 `toml:"http_timeout_s" validate:"gt=0"`
	Bearer       string  `toml:"bearer,omitempty"`
	Username     string  `toml:"username,omitempty"`
	Password     string  `toml:"password,omitempty"`
}

type Endpoints struct {
	Events   string `toml:"events"`
	Transfer string `toml:"transfer"`
	Defect   string `toml:"defect"`
}

type State struct {
	File string `toml:"file"`
}

type Users struct {
	CacheFile string `toml:"cache_file"`
	CacheTTLS int    `toml:"cache_ttl_s" validate:"gt=0"`
}

type Speech struct {
	PreferCloud bool    `toml:"prefer_cloud"`
	SynthURL    string  `toml:"synth_url,omitempty"`
	Voice       string  `toml:"voice"`
	Rate        string  `toml:"rate"`
	LocalVoice  string  `toml:"local_voice,omitempty"`
	LocalRate   int     `toml:"local_rate"`
	Volume      float64 `toml:"volume" validate:"gte=0,lte=1"`
	CacheDir    string  `toml:"cache_dir"`
}

type Dialog struct {
	Command []string `toml:"command,omitempty,multiline"`
}

type Device struct {
	DeviceID string `toml:"device_id" validate:"required"`
	ComPort  string `toml:"com_port" validate:"required"`
	BaudRate int    `toml:"baud_rate" validate:"gt=0"`
}

var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Backend: Backend{
		Env:          "dev",
		HTTPTimeoutS: 8.0,
	},
	Endpoints: Endpoints{
		Events:   "/api/v1/cut/scan",
		Transfer: "/api/v1/transfer/scan",
		Defect:   "/api/v1/defects/",
	},
	State: State{
		File: "state.json",
	},
	Users: Users{
		CacheFile: "users_cache.json",
		CacheTTLS: 300,
	},
	Speech: Speech{
		PreferCloud: true,
		Voice:       "ru-RU-DmitryNeural",
		Rate:        "+50%",
		LocalRate:   190,
		Volume:      1.0,
		CacheDir:    ".tts_cache",
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	if cfgPath == "" {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		err := os.MkdirAll(filepath.Dir(cfgPath), 0o750)
		if err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		err = cfg.Save()
		if err != nil {
			return nil, err
		}
	}

	err := cfg.Load()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top.
	// This ensures fields not present in the file retain their default values.
	newVals := c.defaults
	err = toml.Unmarshal(data, &newVals)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	newVals.Backend.Env = strings.ToLower(newVals.Backend.Env)
	if newVals.Backend.BaseURL == "" {
		if newVals.Backend.Env == "prod" {
			newVals.Backend.BaseURL = prodBaseURL
		} else {
			newVals.Backend.BaseURL = devBaseURL
		}
	}
	newVals.Backend.BaseURL = strings.TrimRight(newVals.Backend.BaseURL, "/")

	for i := range newVals.Devices {
		if newVals.Devices[i].BaudRate == 0 {
			newVals.Devices[i].BaudRate = 9600
		}
	}

	if err := validator.New().Struct(&newVals); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) Backend() Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Backend
}

func (c *Instance) Endpoints() Endpoints {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Endpoints
}

func (c *Instance) StateFile() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.State.File
}

func (c *Instance) Users() Users {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Users
}

func (c *Instance) Speech() Speech {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Speech
}

func (c *Instance) DialogCommand() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cmd := make([]string, len(c.vals.Dialog.Command))
	copy(cmd, c.vals.Dialog.Command)
	return cmd
}

func (c *Instance) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	devices := make([]Device, len(c.vals.Devices))
	copy(devices, c.vals.Devices)
	return devices
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}
