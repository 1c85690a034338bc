// Copyright (c) 2026 The Echoloop Authors. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package config loads echoloop engine settings from YAML files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ghodss/yaml"

	"github.com/echoloop/echoloop"
	"github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/fdtable"
	"github.com/echoloop/echoloop/pkg/logging"
)

// DefaultAddress is used when neither the file nor the command line names one.
const DefaultAddress = "tcp://127.0.0.1:9000"

// Config mirrors echoloop.Options in a form that can be written by hand.
type Config struct {
	Address             string       `json:"address"`
	ReadBufferCap       int          `json:"readBufferCap"`
	LockOSThread        bool         `json:"lockOSThread"`
	RecoverAcceptErrors bool         `json:"recoverAcceptErrors"`
	Table               TableConfig  `json:"table"`
	Socket              SocketConfig `json:"socket"`
	Log                 LogConfig    `json:"log"`
}

// TableConfig sizes the descriptor table.
type TableConfig struct {
	InitialCap int `json:"initialCap"`
	GrowthStep int `json:"growthStep"`
	MaxCap     int `json:"maxCap"`
}

// SocketConfig holds socket options, KeepAlive is a Go duration such as "30s"
// and a negative Linger keeps the system default.
type SocketConfig struct {
	NoDelay    bool   `json:"noDelay"`
	KeepAlive  string `json:"keepAlive"`
	RecvBuffer int    `json:"recvBuffer"`
	SendBuffer int    `json:"sendBuffer"`
	ReuseAddr  bool   `json:"reuseAddr"`
	ReusePort  bool   `json:"reusePort"`
	Linger     int    `json:"linger"`
}

// LogConfig selects where logs go and how verbose they are.
// Level takes a zap level name or its integer value.
type LogConfig struct {
	File  string `json:"file"`
	Level string `json:"level"`
}

// Default returns the configuration echoloop runs with when no file is given.
func Default() *Config {
	return &Config{
		Address:             DefaultAddress,
		ReadBufferCap:       echoloop.DefaultReadBufferCap,
		RecoverAcceptErrors: true,
		Table: TableConfig{
			InitialCap: fdtable.DefaultInitialCapacity,
			GrowthStep: fdtable.DefaultGrowthStep,
		},
		Socket: SocketConfig{Linger: -1},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load for configuration already in memory.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate reports the first setting echoloop cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Address) == "" {
		return invalid("address is empty")
	}
	if c.ReadBufferCap <= 0 {
		return invalid("readBufferCap must be positive, got %d", c.ReadBufferCap)
	}
	if c.Table.InitialCap <= 0 || c.Table.GrowthStep <= 0 {
		return invalid("table sizes must be positive, got initialCap=%d growthStep=%d",
			c.Table.InitialCap, c.Table.GrowthStep)
	}
	if c.Table.MaxCap < 0 || (c.Table.MaxCap > 0 && c.Table.MaxCap < c.Table.InitialCap) {
		return invalid("table.maxCap %d is below table.initialCap %d", c.Table.MaxCap, c.Table.InitialCap)
	}
	if c.Socket.RecvBuffer < 0 || c.Socket.SendBuffer < 0 {
		return invalid("socket buffer sizes must not be negative")
	}
	if _, err := c.keepAlive(); err != nil {
		return invalid("socket.keepAlive: %v", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level: %v", err)
	}
	return nil
}

func (c *Config) keepAlive() (time.Duration, error) {
	if c.Socket.KeepAlive == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Socket.KeepAlive)
	if err == nil && d < 0 {
		err = fmt.Errorf("negative duration %s", d)
	}
	return d, err
}

// Options converts the configuration into engine options.
func (c *Config) Options() ([]echoloop.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	keepAlive, _ := c.keepAlive()
	level, _ := logging.ParseLevel(c.Log.Level)

	opts := []echoloop.Option{
		echoloop.WithReadBufferCap(c.ReadBufferCap),
		echoloop.WithLockOSThread(c.LockOSThread),
		echoloop.WithRecoverAcceptErrors(c.RecoverAcceptErrors),
		echoloop.WithTableInitialCap(c.Table.InitialCap),
		echoloop.WithTableGrowthStep(c.Table.GrowthStep),
		echoloop.WithTableMaxCap(c.Table.MaxCap),
		echoloop.WithTCPNoDelay(c.Socket.NoDelay),
		echoloop.WithTCPKeepAlive(keepAlive),
		echoloop.WithSocketRecvBuffer(c.Socket.RecvBuffer),
		echoloop.WithSocketSendBuffer(c.Socket.SendBuffer),
		echoloop.WithReuseAddr(c.Socket.ReuseAddr),
		echoloop.WithReusePort(c.Socket.ReusePort),
		echoloop.WithLinger(c.Socket.Linger),
		echoloop.WithLogLevel(level),
	}
	if c.Log.File != "" {
		opts = append(opts, echoloop.WithLogPath(c.Log.File))
	}
	return opts, nil
}
