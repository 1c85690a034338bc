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

// Package errors defines common errors for echoloop.
package errors

import "errors"

var (
	// ErrEmptyEngine occurs when trying to do something with an empty engine.
	ErrEmptyEngine = errors.New("echoloop: the internal engine is empty")
	// ErrEngineShutdown occurs when the engine is closing.
	ErrEngineShutdown = errors.New("echoloop: engine is going to be shutdown")
	// ErrEngineInShutdown occurs when attempting to shut the engine down more than once.
	ErrEngineInShutdown = errors.New("echoloop: engine is already in shutdown")
	// ErrSetupFailure occurs when the listener or the loop cannot be brought up.
	ErrSetupFailure = errors.New("echoloop: setup failure")
	// ErrAcceptSocket occurs when acceptor does not accept the new connection properly.
	ErrAcceptSocket = errors.New("echoloop: accept a new connection error")
	// ErrListenerFailure occurs when the poller reports an error condition on the listener.
	ErrListenerFailure = errors.New("echoloop: error readiness on the listening socket")
	// ErrUnsupportedProtocol occurs when trying to use protocol that is not supported.
	ErrUnsupportedProtocol = errors.New("echoloop: only tcp/tcp4/tcp6 are supported")
	// ErrUnsupportedTCPProtocol occurs when trying to use an unsupported TCP protocol.
	ErrUnsupportedTCPProtocol = errors.New("echoloop: only tcp/tcp4/tcp6 are supported")
	// ErrUnsupportedPlatform occurs when running echoloop on an unsupported platform.
	ErrUnsupportedPlatform = errors.New("echoloop: unsupported platform")
	// ErrInvalidNetworkAddress occurs when the network address is invalid.
	ErrInvalidNetworkAddress = errors.New("echoloop: invalid network address")
	// ErrInvalidConfig occurs when a configuration file holds values echoloop cannot run with.
	ErrInvalidConfig = errors.New("echoloop: invalid configuration")

	// ============================================ descriptor table errors ============================================.

	// ErrCapacityExhausted occurs when the descriptor table is not allowed to grow any further.
	ErrCapacityExhausted = errors.New("echoloop: descriptor table capacity exhausted")
	// ErrInvalidIndex occurs when a table index is out of the watched range or refers to a free slot.
	ErrInvalidIndex = errors.New("echoloop: invalid descriptor table index")
	// ErrInvalidDescriptor occurs when trying to register a negative descriptor.
	ErrInvalidDescriptor = errors.New("echoloop: invalid descriptor")
	// ErrInvalidTableSize occurs when the descriptor table is configured with a non-positive size.
	ErrInvalidTableSize = errors.New("echoloop: invalid descriptor table size")

	// ============================================== connection errors ==============================================.

	// ErrPeerClosed occurs when the peer performed an orderly shutdown (zero-length read).
	ErrPeerClosed = errors.New("echoloop: connection closed by peer")
	// ErrPeerHangup occurs when the poller reports an error or hang-up condition on a connection.
	ErrPeerHangup = errors.New("echoloop: error or hang-up readiness on connection")
	// ErrIOFailed occurs when reading from or writing to a connection fails.
	ErrIOFailed = errors.New("echoloop: connection I/O failed")
)
