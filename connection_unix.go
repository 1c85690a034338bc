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

//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

package echoloop

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/echoloop/echoloop/internal/socket"
	"github.com/echoloop/echoloop/pkg/errors"
	bbPool "github.com/echoloop/echoloop/pkg/pool/bytebuffer"
)

type conn struct {
	fd         int                // file descriptor
	index      int                // slot in the descriptor table
	ctx        interface{}        // user-defined context
	loop       *eventloop         // connected event-loop
	buffer     []byte             // bytes of the current read, valid within OnTraffic
	outbound   *bbPool.ByteBuffer // bytes the socket has not taken yet
	localAddr  net.Addr           // local addr
	remoteAddr net.Addr           // remote addr
	err        error              // first I/O failure, closes the connection after the callback
	opened     bool               // registered in the table
}

func newTCPConn(fd int, el *eventloop, sa unix.Sockaddr, localAddr net.Addr) *conn {
	return &conn{
		fd:         fd,
		index:      -1,
		loop:       el,
		localAddr:  localAddr,
		remoteAddr: socket.SockaddrToTCPAddr(sa),
	}
}

func ioFailed(op string, err error) error {
	return fmt.Errorf("%w: %w", errors.ErrIOFailed, os.NewSyscallError(op, err))
}

func (c *conn) release() {
	c.buffer = nil
	if c.outbound != nil {
		bbPool.Put(c.outbound)
		c.outbound = nil
	}
	c.opened = false
}

func (c *conn) pending() bool {
	return c.outbound != nil && c.outbound.Len() > 0
}

// write takes as much of p as the socket accepts without blocking.
func (c *conn) write(p []byte) (n int, err error) {
	for n < len(p) {
		var m int
		m, err = unix.Write(c.fd, p[n:])
		switch err {
		case nil:
			n += m
		case unix.EINTR:
		case unix.EAGAIN:
			return n, nil
		default:
			return n, err
		}
	}
	return n, nil
}

// flush writes out the buffered bytes and resumes reading once they are gone.
func (c *conn) flush() error {
	n, err := c.write(c.outbound.B)
	if err != nil {
		return ioFailed("write", err)
	}
	c.outbound.B = c.outbound.B[:copy(c.outbound.B, c.outbound.B[n:])]
	if c.outbound.Len() > 0 {
		return nil
	}
	bbPool.Put(c.outbound)
	c.outbound = nil
	return c.loop.table.Modify(c.index, unix.POLLIN)
}

// ================================== Conn implementation ==================================

func (c *conn) Fd() int                    { return c.fd }
func (c *conn) Index() int                 { return c.index }
func (c *conn) Context() interface{}       { return c.ctx }
func (c *conn) SetContext(ctx interface{}) { c.ctx = ctx }
func (c *conn) LocalAddr() net.Addr        { return c.localAddr }
func (c *conn) RemoteAddr() net.Addr       { return c.remoteAddr }
func (c *conn) Read() []byte               { return c.buffer }

func (c *conn) OutboundBuffered() int {
	if c.outbound == nil {
		return 0
	}
	return c.outbound.Len()
}

func (c *conn) Write(p []byte) (int, error) {
	if !c.opened {
		return 0, net.ErrClosed
	}
	if c.err != nil {
		return 0, c.err
	}

	// Keep the byte order: once something is buffered, everything after it queues up.
	if c.pending() {
		_, _ = c.outbound.Write(p)
		return len(p), nil
	}

	n, err := c.write(p)
	if err != nil {
		c.err = ioFailed("write", err)
		return n, c.err
	}
	if n < len(p) {
		if c.outbound == nil {
			c.outbound = bbPool.Get()
		}
		_, _ = c.outbound.Write(p[n:])
		if err = c.loop.table.Modify(c.index, unix.POLLOUT); err != nil {
			c.err = err
			return n, err
		}
	}
	return len(p), nil
}
