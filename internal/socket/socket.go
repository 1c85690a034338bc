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

// Package socket creates the listening TCP socket of the engine and wraps the
// socket options it may set on listening and accepted descriptors.
package socket

import (
	"net"

	"golang.org/x/sys/unix"
)

// Option is used for setting an option on socket.
type Option struct {
	SetSockOpt func(int, int) error
	Opt        int
}

func execSockOpts(fd int, opts []Option) error {
	for _, opt := range opts {
		if err := opt.SetSockOpt(fd, opt.Opt); err != nil {
			return err
		}
	}
	return nil
}

// TCPSocket creates a listening TCP socket bound to addr and returns its
// file descriptor along with the address it was actually bound to, which
// differs from addr when the port is 0. The given socket options are set
// before the socket is bound.
func TCPSocket(proto, addr string, sockOpts []Option) (int, net.Addr, error) {
	return tcpSocket(proto, addr, sockOpts)
}

// Accept accepts the next incoming connection on fd along with setting
// O_NONBLOCK and O_CLOEXEC flags on it.
func Accept(fd int) (int, unix.Sockaddr, error) {
	return sysAccept(fd)
}

// SetSockOpts sets the given socket options on fd.
func SetSockOpts(fd int, sockOpts []Option) error {
	return execSockOpts(fd, sockOpts)
}
