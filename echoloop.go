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
	"context"
	"net"
	"strings"

	"github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/logging"
)

// Action is an action that occurs after the completion of an event.
type Action int

const (
	// None indicates that no action should occur following an event.
	None Action = iota

	// Close closes the connection.
	Close

	// Shutdown shutdowns the engine.
	Shutdown
)

// Engine represents an engine context which provides information about the
// running engine and has control functions for managing state.
type Engine struct {
	// eng is the internal engine struct.
	eng *engine
}

// Validate checks whether the engine is available.
func (e Engine) Validate() error {
	if e.eng == nil {
		return errors.ErrEmptyEngine
	}
	if e.eng.isInShutdown() {
		return errors.ErrEngineInShutdown
	}
	return nil
}

// Addr returns the address the engine is listening on, with the actual port
// when the engine was asked to bind port 0.
func (e Engine) Addr() net.Addr {
	if e.eng == nil {
		return nil
	}
	return e.eng.ln.addr
}

// CountConnections counts the number of currently active connections and returns it.
func (e Engine) CountConnections() int {
	if err := e.Validate(); err != nil {
		return -1
	}
	return e.eng.countConn()
}

// Stop asks the event loop to shut down and waits until every connection
// has been closed, or until ctx is done.
//
// Stop must not be called from within an EventHandler callback, return
// Shutdown from the callback instead.
func (e Engine) Stop(ctx context.Context) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return e.eng.stop(ctx)
}

// Conn is an interface of an echoloop connection, it is only meant to be used
// from within EventHandler callbacks, which all run on the event loop.
type Conn interface {
	// Fd returns the underlying file descriptor.
	Fd() int

	// Index returns the slot of the connection in the descriptor table.
	Index() int

	// Context returns a user-defined context.
	Context() (ctx interface{})

	// SetContext sets a user-defined context.
	SetContext(ctx interface{})

	// LocalAddr is the connection's local socket address.
	LocalAddr() (addr net.Addr)

	// RemoteAddr is the connection's remote peer address.
	RemoteAddr() (addr net.Addr)

	// Read returns the bytes received by the current read, the slice is
	// only valid until OnTraffic returns.
	Read() []byte

	// Write writes p to the peer. Bytes the socket cannot take right away
	// are buffered and flushed once the socket becomes writable, reading
	// from the connection is paused meanwhile. An I/O failure closes the
	// connection after the current callback returns.
	Write(p []byte) (n int, err error)

	// OutboundBuffered returns the number of bytes still waiting to be written.
	OutboundBuffered() int
}

type (
	// EventHandler represents the engine events' callbacks for the Run call.
	// Each event has an Action return value that is used manage the state
	// of the connection and engine.
	EventHandler interface {
		// OnBoot fires when the engine is ready for accepting connections.
		// The parameter engine has information and various utilities.
		OnBoot(eng Engine) (action Action)

		// OnShutdown fires when the engine is being shut down, it is called right after
		// all connections are closed.
		OnShutdown(eng Engine)

		// OnOpen fires when a new connection has been accepted and registered.
		OnOpen(c Conn) (action Action)

		// OnClose fires when a connection has been closed.
		// The parameter err is the reason of closing, nil when the handler asked for it.
		OnClose(c Conn, err error) (action Action)

		// OnTraffic fires when a read on the connection returned data,
		// call c.Read() to get it.
		OnTraffic(c Conn) (action Action)
	}

	// BuiltinEventEngine is a built-in implementation of EventHandler which sets up each method with a default implementation,
	// you can compose it with your own implementation of EventHandler when you don't want to implement all methods
	// in EventHandler.
	BuiltinEventEngine struct{}
)

// OnBoot fires when the engine is ready for accepting connections.
func (*BuiltinEventEngine) OnBoot(_ Engine) (action Action) {
	return
}

// OnShutdown fires when the engine is being shut down.
func (*BuiltinEventEngine) OnShutdown(_ Engine) {
}

// OnOpen fires when a new connection has been opened.
func (*BuiltinEventEngine) OnOpen(_ Conn) (action Action) {
	return
}

// OnClose fires when a connection has been closed.
func (*BuiltinEventEngine) OnClose(_ Conn, _ error) (action Action) {
	return
}

// OnTraffic fires when a connection has received data.
func (*BuiltinEventEngine) OnTraffic(_ Conn) (action Action) {
	return
}

// Run starts handling events on the specified address.
//
// Address should use a scheme prefix and be formatted
// like `tcp://192.168.0.10:9851`. Valid network schemes:
//
//	tcp   - bind to both IPv4 and IPv6
//	tcp4  - IPv4
//	tcp6  - IPv6
//
// The "tcp" network scheme is assumed when one is not specified.
//
// Run blocks until the engine shuts down. It returns nil when the engine was
// stopped through Engine.Stop or a Shutdown action, and the fatal error
// otherwise.
func Run(eventHandler EventHandler, protoAddr string, opts ...Option) (err error) {
	options := loadOptions(opts...)

	var flush logging.Flusher
	if options.Logger == nil {
		if options.LogPath != "" {
			if options.Logger, flush, err = logging.CreateLoggerAsLocalFile(options.LogPath, options.LogLevel); err != nil {
				return
			}
		} else {
			options.Logger = logging.GetDefaultLogger()
		}
	}
	defer func() {
		if flush != nil {
			_ = flush()
		}
	}()

	options.Logger.Debugf("default logging level is %s", logging.LogLevel())

	network, addr := parseProtoAddr(protoAddr)
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return errors.ErrUnsupportedProtocol
	}
	if addr == "" {
		return errors.ErrInvalidNetworkAddress
	}

	return run(eventHandler, network, addr, options)
}

func parseProtoAddr(protoAddr string) (network, address string) {
	network = "tcp"
	address = strings.ToLower(protoAddr)
	if strings.Contains(address, "://") {
		pair := strings.SplitN(address, "://", 2)
		network = pair[0]
		address = pair[1]
	}
	return
}
