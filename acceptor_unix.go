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
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/echoloop/echoloop/internal/socket"
	"github.com/echoloop/echoloop/pkg/errors"
)

// accept takes exactly one pending connection off the listener.
func (el *eventloop) accept() error {
	nfd, sa, err := socket.Accept(el.engine.ln.fd)
	if err != nil {
		switch err {
		case unix.EINTR, unix.EAGAIN, unix.ECONNABORTED:
			return nil
		case unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
			if el.engine.opts.RecoverAcceptErrors {
				el.engine.opts.Logger.Warnf("accept() failed, retrying on the next cycle: %v", err)
				return nil
			}
		}
		return fmt.Errorf("%w: %w", errors.ErrAcceptSocket, os.NewSyscallError("accept", err))
	}

	if err = socket.SetSockOpts(nfd, el.sockOpts); err != nil {
		el.engine.opts.Logger.Warnf("failed to set socket options on fd=%d: %v", nfd, err)
		_ = unix.Close(nfd)
		return nil
	}

	c, err := el.register(nfd, sa)
	if err != nil {
		return err
	}
	return el.handleAction(c, el.handler.OnOpen(c))
}

// register puts a connected socket into the table, the table owns nfd from
// then on. If the table refuses it, nfd is closed here.
func (el *eventloop) register(nfd int, sa unix.Sockaddr) (*conn, error) {
	c := newTCPConn(nfd, el, sa, el.engine.ln.addr)
	idx, err := el.table.Add(nfd, unix.POLLIN, c)
	if err != nil {
		_ = unix.Close(nfd)
		return nil, err
	}
	c.index = idx
	c.opened = true
	atomic.AddInt32(&el.engine.connCount, 1)
	el.setState(stateRunning)
	return c, nil
}
