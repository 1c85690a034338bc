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
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/echoloop/echoloop/internal/queue"
	"github.com/echoloop/echoloop/internal/socket"
	"github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/fdtable"
)

type loopState int

const (
	stateListening loopState = iota
	stateRunning
	stateShutdown
)

func (s loopState) String() string {
	switch s {
	case stateListening:
		return "LISTENING"
	case stateRunning:
		return "RUNNING"
	case stateShutdown:
		return "SHUTDOWN"
	}
	return "UNKNOWN"
}

const errorEvents = unix.POLLERR | unix.POLLHUP | unix.POLLNVAL

type eventloop struct {
	engine    *engine         // engine in loop
	table     *fdtable.Table  // descriptors watched by poll
	lnIndex   int             // table index of the listener
	wakeIndex int             // table index of the wake pipe
	buffer    []byte          // read buffer shared by all connections
	sockOpts  []socket.Option // applied to every accepted connection
	handler   EventHandler    // user eventHandler
	state     loopState
	poll      func(fds []unix.PollFd, timeout int) (int, error)
}

func (el *eventloop) setState(s loopState) {
	if el.state == s {
		return
	}
	el.engine.opts.Logger.Debugf("event loop state %s -> %s", el.state, s)
	el.state = s
}

func (el *eventloop) run() error {
	if el.engine.opts.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for {
		if err := el.cycle(); err != nil {
			el.setState(stateShutdown)
			if err == errors.ErrEngineShutdown {
				el.engine.opts.Logger.Debugf("event loop is exiting on demand")
				return nil
			}
			return err
		}
	}
}

// cycle waits for readiness once and services every ready entry.
func (el *eventloop) cycle() error {
	for {
		_, err := el.poll(el.table.View(), -1)
		if err == nil {
			break
		}
		if err != unix.EINTR {
			return os.NewSyscallError("poll", err)
		}
	}

	// The listener goes first, a connection accepted here is not looked at
	// before the next cycle since its revents are still zero.
	lnEvents := el.revents(el.lnIndex)
	if lnEvents&(unix.POLLERR|unix.POLLNVAL) != 0 {
		return fmt.Errorf("%w: revents %#x", errors.ErrListenerFailure, lnEvents)
	}
	if lnEvents&unix.POLLIN != 0 {
		if err := el.accept(); err != nil {
			return err
		}
	}

	var woken bool
	for i := el.lnIndex + 1; i <= el.table.HighWatermark(); i++ {
		pfd, ok := el.table.Entry(i)
		if !ok || pfd.Revents == 0 {
			continue
		}
		if i == el.wakeIndex {
			woken = true
			continue
		}
		c, ok := el.table.Context(i).(*conn)
		if !ok {
			continue
		}
		if err := el.serve(c, pfd.Revents); err != nil {
			return err
		}
	}

	if woken {
		return el.runTasks()
	}
	return nil
}

func (el *eventloop) revents(idx int) int16 {
	pfd, _ := el.table.Entry(idx)
	return pfd.Revents
}

func (el *eventloop) serve(c *conn, revents int16) error {
	switch {
	case revents&errorEvents != 0:
		return el.close(c, errors.ErrPeerHangup)
	case revents&unix.POLLOUT != 0 && c.pending():
		if err := c.flush(); err != nil {
			return el.close(c, err)
		}
		return nil
	case revents&unix.POLLIN != 0:
		return el.read(c)
	}
	return nil
}

func (el *eventloop) read(c *conn) error {
	n, err := unix.Read(c.fd, el.buffer)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return el.close(c, ioFailed("read", err))
	}
	if n == 0 {
		return el.close(c, errors.ErrPeerClosed)
	}

	c.buffer = el.buffer[:n]
	action := el.handler.OnTraffic(c)
	c.buffer = nil
	return el.handleAction(c, action)
}

// handleAction applies what a callback asked for, a write failure during
// the callback closes the connection regardless.
func (el *eventloop) handleAction(c *conn, action Action) error {
	if c.err != nil {
		return el.close(c, c.err)
	}
	switch action {
	case None:
		return nil
	case Close:
		return el.close(c, nil)
	case Shutdown:
		return errors.ErrEngineShutdown
	}
	return nil
}

// close removes c from the table, which closes its descriptor, and fires OnClose.
func (el *eventloop) close(c *conn, err error) error {
	if !c.opened {
		return nil
	}

	if rerr := el.table.Remove(c.index); rerr != nil {
		if rerr == errors.ErrInvalidIndex {
			return fmt.Errorf("connection fd=%d lost its slot %d: %w", c.fd, c.index, rerr)
		}
		el.engine.opts.Logger.Warnf("failed to close connection(fd=%d): %v", c.fd, rerr)
	}
	c.release()
	atomic.AddInt32(&el.engine.connCount, -1)

	if err != nil && err != errors.ErrEngineShutdown {
		el.engine.opts.Logger.Debugf("connection(fd=%d, index=%d) closed: %v", c.fd, c.index, err)
	}

	if el.handler.OnClose(c, err) == Shutdown {
		return errors.ErrEngineShutdown
	}
	return nil
}

// runTasks drains the wake pipe and runs every queued task.
func (el *eventloop) runTasks() error {
	pfd, _ := el.table.Entry(el.wakeIndex)
	var buf [64]byte
	for {
		n, err := unix.Read(int(pfd.Fd), buf[:])
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			break
		}
	}
	// Any task enqueued from now on writes a fresh wake-up byte.
	atomic.StoreInt32(&el.engine.wakeSig, 0)

	for task := el.engine.tasks.Dequeue(); task != nil; task = el.engine.tasks.Dequeue() {
		err := task.Run(task.Arg)
		queue.PutTask(task)
		if err != nil {
			return err
		}
	}
	return nil
}

// closeAll closes every client with ErrEngineShutdown, then the listener and the wake pipe.
func (el *eventloop) closeAll() {
	el.setState(stateShutdown)
	el.table.Iterate(func(_ int, _ unix.PollFd, ctx interface{}) bool {
		if c, ok := ctx.(*conn); ok {
			_ = el.close(c, errors.ErrEngineShutdown)
		}
		return true
	})
	if err := el.table.Close(); err != nil {
		el.engine.opts.Logger.Warnf("failed to close the descriptor table: %v", err)
	}
}
