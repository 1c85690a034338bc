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

package echoloop

import (
	"time"

	"github.com/echoloop/echoloop/pkg/logging"
)

// DefaultReadBufferCap is the size of the buffer every read lands in.
const DefaultReadBufferCap = 10000

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{
		ReadBufferCap:       DefaultReadBufferCap,
		RecoverAcceptErrors: true,
		Linger:              -1,
		LogLevel:            logging.DebugLevel,
	}
	for _, option := range options {
		option(opts)
	}
	if opts.ReadBufferCap <= 0 {
		opts.ReadBufferCap = DefaultReadBufferCap
	}
	return opts
}

// Options are configurations for the echoloop engine.
type Options struct {
	// ================================== Options for the event loop ==================================

	// LockOSThread is used to determine whether the event loop goroutine is locked to its OS thread.
	LockOSThread bool

	// ReadBufferCap is the maximum number of bytes a single read takes off a connection,
	// bigger payloads are delivered across several OnTraffic calls.
	ReadBufferCap int

	// RecoverAcceptErrors keeps the engine running when accept(2) fails for lack of
	// descriptors or kernel memory, the pending connection is retried on the next cycle.
	RecoverAcceptErrors bool

	// ================================== Options for the descriptor table ==================================

	// TableInitialCap is the number of slots the descriptor table starts with,
	// 0 means fdtable.DefaultInitialCapacity.
	TableInitialCap int

	// TableGrowthStep is the number of slots added each time the table fills up,
	// 0 means fdtable.DefaultGrowthStep.
	TableGrowthStep int

	// TableMaxCap bounds the table, 0 means unbounded.
	TableMaxCap int

	// ================================== Options for sockets ==================================

	// ReuseAddr indicates whether to set up the SO_REUSEADDR socket option.
	ReuseAddr bool

	// ReusePort indicates whether to set up the SO_REUSEPORT socket option.
	ReusePort bool

	// TCPKeepAlive sets up a duration for (SO_KEEPALIVE) socket option.
	TCPKeepAlive time.Duration

	// TCPNoDelay controls whether the operating system should delay
	// packet transmission in hopes of sending fewer packets (Nagle's algorithm).
	TCPNoDelay bool

	// SocketRecvBuffer sets the maximum socket receive buffer in bytes.
	SocketRecvBuffer int

	// SocketSendBuffer sets the maximum socket send buffer in bytes.
	SocketSendBuffer int

	// Linger sets SO_LINGER in seconds on accepted connections, a negative value
	// leaves the system default and 0 makes close(2) discard unsent data.
	Linger int

	// ================================== Options for logging ==================================

	// LogPath is the local path where logs will be written, this is the easiest way to set up logging,
	// echoloop instantiates a default uber-go/zap logger with this given log path, you are also allowed to employ
	// you own logger during the lifetime by implementing the following logging.Logger interface.
	//
	// Note that this option can be overridden by the option Logger.
	LogPath string

	// LogLevel indicates the logging level, it should be used along with LogPath.
	LogLevel logging.Level

	// Logger is the customized logger for logging info, if it is not set,
	// then echoloop will use the default logger powered by go.uber.org/zap.
	Logger logging.Logger
}

// WithOptions sets up all options.
func WithOptions(options Options) Option {
	return func(opts *Options) {
		*opts = options
	}
}

// WithLockOSThread sets up LockOSThread mode for the event loop.
func WithLockOSThread(lockOSThread bool) Option {
	return func(opts *Options) {
		opts.LockOSThread = lockOSThread
	}
}

// WithReadBufferCap sets up ReadBufferCap for reading bytes.
func WithReadBufferCap(readBufferCap int) Option {
	return func(opts *Options) {
		opts.ReadBufferCap = readBufferCap
	}
}

// WithRecoverAcceptErrors sets up RecoverAcceptErrors.
func WithRecoverAcceptErrors(recover bool) Option {
	return func(opts *Options) {
		opts.RecoverAcceptErrors = recover
	}
}

// WithTableInitialCap sets up the initial capacity of the descriptor table.
func WithTableInitialCap(n int) Option {
	return func(opts *Options) {
		opts.TableInitialCap = n
	}
}

// WithTableGrowthStep sets up the growth step of the descriptor table.
func WithTableGrowthStep(n int) Option {
	return func(opts *Options) {
		opts.TableGrowthStep = n
	}
}

// WithTableMaxCap sets up the maximum capacity of the descriptor table.
func WithTableMaxCap(n int) Option {
	return func(opts *Options) {
		opts.TableMaxCap = n
	}
}

// WithReuseAddr sets up SO_REUSEADDR socket option.
func WithReuseAddr(reuseAddr bool) Option {
	return func(opts *Options) {
		opts.ReuseAddr = reuseAddr
	}
}

// WithReusePort sets up SO_REUSEPORT socket option.
func WithReusePort(reusePort bool) Option {
	return func(opts *Options) {
		opts.ReusePort = reusePort
	}
}

// WithTCPKeepAlive sets up the SO_KEEPALIVE socket option with duration.
func WithTCPKeepAlive(tcpKeepAlive time.Duration) Option {
	return func(opts *Options) {
		opts.TCPKeepAlive = tcpKeepAlive
	}
}

// WithTCPNoDelay enable/disable the TCP_NODELAY socket option.
func WithTCPNoDelay(tcpNoDelay bool) Option {
	return func(opts *Options) {
		opts.TCPNoDelay = tcpNoDelay
	}
}

// WithSocketRecvBuffer sets the maximum socket receive buffer in bytes.
func WithSocketRecvBuffer(recvBuf int) Option {
	return func(opts *Options) {
		opts.SocketRecvBuffer = recvBuf
	}
}

// WithSocketSendBuffer sets the maximum socket send buffer in bytes.
func WithSocketSendBuffer(sendBuf int) Option {
	return func(opts *Options) {
		opts.SocketSendBuffer = sendBuf
	}
}

// WithLinger sets up the SO_LINGER socket option on accepted connections.
func WithLinger(sec int) Option {
	return func(opts *Options) {
		opts.Linger = sec
	}
}

// WithLogPath is an option to set up the local path of log file.
func WithLogPath(fileName string) Option {
	return func(opts *Options) {
		opts.LogPath = fileName
	}
}

// WithLogLevel is an option to set up the logging level.
func WithLogLevel(lvl logging.Level) Option {
	return func(opts *Options) {
		opts.LogLevel = lvl
	}
}

// WithLogger sets up a customized logger.
func WithLogger(logger logging.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}
