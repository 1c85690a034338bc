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
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/echoloop/echoloop/internal/socket"
	"github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/logging"
)

type listener struct {
	once       sync.Once
	fd         int
	addr       net.Addr
	address    string
	network    string
	sockOpts   []socket.Option
	registered bool
}

func (ln *listener) normalize() (err error) {
	ln.fd, ln.addr, err = socket.TCPSocket(ln.network, ln.address, ln.sockOpts)
	ln.network = "tcp"
	return
}

// close releases the listening socket unless the descriptor table already
// owns it, in which case the table closes it on removal.
func (ln *listener) close() {
	ln.once.Do(
		func() {
			if ln.fd > 0 && !ln.registered {
				logging.Error(os.NewSyscallError("close", unix.Close(ln.fd)))
			}
		})
}

func initListener(network, addr string, options *Options) (l *listener, err error) {
	var sockOpts []socket.Option
	if options.ReuseAddr {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetReuseAddr, Opt: 1})
	}
	if options.ReusePort {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetReuseport, Opt: 1})
	}
	if options.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetRecvBuffer, Opt: options.SocketRecvBuffer})
	}
	if options.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetSendBuffer, Opt: options.SocketSendBuffer})
	}
	l = &listener{network: network, address: addr, sockOpts: sockOpts}
	if err = l.normalize(); err != nil {
		err = fmt.Errorf("%w: %w", errors.ErrSetupFailure, err)
	}
	return
}

// connSockOpts are applied to every accepted connection.
func connSockOpts(options *Options) (sockOpts []socket.Option) {
	if options.TCPNoDelay {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetNoDelay, Opt: 1})
	}
	if options.TCPKeepAlive > 0 {
		secs := int(options.TCPKeepAlive / time.Second)
		if secs < 1 {
			secs = 1
		}
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetKeepAlivePeriod, Opt: secs})
	}
	if options.SocketRecvBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetRecvBuffer, Opt: options.SocketRecvBuffer})
	}
	if options.SocketSendBuffer > 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetSendBuffer, Opt: options.SocketSendBuffer})
	}
	if options.Linger >= 0 {
		sockOpts = append(sockOpts, socket.Option{SetSockOpt: socket.SetLinger, Opt: options.Linger})
	}
	return
}
