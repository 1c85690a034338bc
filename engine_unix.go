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
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/echoloop/echoloop/internal/queue"
	"github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/fdtable"
)

var wakeByte = []byte{1}

type engine struct {
	ln           *listener             // the listener for accepting new connections
	el           *eventloop            // the only event loop
	opts         *Options              // options with engine
	eventHandler EventHandler          // user eventHandler
	tasks        *queue.AsyncTaskQueue // tasks submitted from other goroutines
	connCount    int32                 // number of active connections
	inShutdown   int32                 // whether the engine is in shutdown
	stopping     int32                 // whether Stop has been called
	done         chan struct{}         // closed once the event loop has exited

	wakeMu     sync.Mutex // guards the write end of the wake pipe against closing
	wakeFd     int        // write end of the wake pipe
	wakeClosed bool
	wakeSig    int32 // set while a wake-up byte is in flight
}

func (eng *engine) isInShutdown() bool {
	return atomic.LoadInt32(&eng.inShutdown) == 1
}

func (eng *engine) countConn() int {
	return int(atomic.LoadInt32(&eng.connCount))
}

// newEngine binds the listener and builds the event loop around a fresh
// descriptor table holding the listener at index 0 and the read end of
// the wake pipe at index 1.
func newEngine(eventHandler EventHandler, network, addr string, options *Options) (eng *engine, err error) {
	ln, err := initListener(network, addr, options)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			ln.close()
		}
	}()

	tableOpts := []fdtable.Option{fdtable.WithMaxCapacity(options.TableMaxCap)}
	if options.TableInitialCap != 0 {
		tableOpts = append(tableOpts, fdtable.WithInitialCapacity(options.TableInitialCap))
	}
	if options.TableGrowthStep != 0 {
		tableOpts = append(tableOpts, fdtable.WithGrowthStep(options.TableGrowthStep))
	}
	table, err := fdtable.New(tableOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSetupFailure, err)
	}
	defer func() {
		if err != nil {
			_ = table.Close()
		}
	}()

	eng = &engine{
		ln:           ln,
		opts:         options,
		eventHandler: eventHandler,
		tasks:        queue.NewAsyncTaskQueue(),
		done:         make(chan struct{}),
		wakeFd:       -1,
	}

	lnIndex, err := table.Add(ln.fd, unix.POLLIN, ln)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSetupFailure, err)
	}
	ln.registered = true

	var p [2]int
	if err = unix.Pipe(p[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrSetupFailure, os.NewSyscallError("pipe", err))
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err = os.NewSyscallError("setnonblock", unix.SetNonblock(fd, true)); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, fmt.Errorf("%w: %w", errors.ErrSetupFailure, err)
		}
	}
	wakeIndex, err := table.Add(p[0], unix.POLLIN, nil)
	if err != nil {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
		return nil, fmt.Errorf("%w: %w", errors.ErrSetupFailure, err)
	}
	eng.wakeFd = p[1]

	eng.el = &eventloop{
		engine:    eng,
		table:     table,
		lnIndex:   lnIndex,
		wakeIndex: wakeIndex,
		buffer:    make([]byte, options.ReadBufferCap),
		sockOpts:  connSockOpts(options),
		handler:   eventHandler,
		poll:      unix.Poll,
	}
	return eng, nil
}

func run(eventHandler EventHandler, network, addr string, options *Options) error {
	eng, err := newEngine(eventHandler, network, addr, options)
	if err != nil {
		options.Logger.Errorf("engine setup failed on %s://%s: %v", network, addr, err)
		return err
	}
	defer eng.release()

	options.Logger.Infof("echoloop engine is listening on %s://%s", eng.ln.network, eng.ln.addr)

	switch eventHandler.OnBoot(Engine{eng}) {
	case None, Close:
	case Shutdown:
		eng.el.closeAll()
		eventHandler.OnShutdown(Engine{eng})
		return nil
	}

	if err = eng.el.run(); err != nil {
		options.Logger.Errorf("event loop terminated: %v", err)
	}
	eng.el.closeAll()
	eventHandler.OnShutdown(Engine{eng})
	return err
}

// release marks the engine as shut down and frees what the table does not own.
func (eng *engine) release() {
	atomic.StoreInt32(&eng.inShutdown, 1)
	eng.wakeMu.Lock()
	if !eng.wakeClosed && eng.wakeFd >= 0 {
		_ = unix.Close(eng.wakeFd)
	}
	eng.wakeClosed = true
	eng.wakeMu.Unlock()
	close(eng.done)
}

// trigger hands a task over to the event loop and wakes it up.
func (eng *engine) trigger(fn queue.TaskFunc, arg interface{}) error {
	eng.wakeMu.Lock()
	defer eng.wakeMu.Unlock()
	if eng.wakeClosed {
		return errors.ErrEngineInShutdown
	}

	task := queue.GetTask()
	task.Run, task.Arg = fn, arg
	eng.tasks.Enqueue(task)

	if !atomic.CompareAndSwapInt32(&eng.wakeSig, 0, 1) {
		return nil
	}
	for {
		_, err := unix.Write(eng.wakeFd, wakeByte)
		switch err {
		case nil, unix.EAGAIN: // a full pipe wakes the loop just as well
			return nil
		case unix.EINTR:
		default:
			return os.NewSyscallError("write", err)
		}
	}
}

func (eng *engine) stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&eng.stopping, 0, 1) {
		return errors.ErrEngineInShutdown
	}
	err := eng.trigger(func(_ interface{}) error { return errors.ErrEngineShutdown }, nil)
	if err != nil {
		return err
	}

	select {
	case <-eng.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
