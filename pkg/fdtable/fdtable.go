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

// Package fdtable implements the registry of descriptors watched by a poll(2)
// based event loop.
//
// Entries are kept in a dense slice of unix.PollFd so that the watched prefix
// of the table can be handed to unix.Poll as-is. Freed slots are marked with
// the Sentinel descriptor and reused before the table grows, which bounds the
// memory to the peak number of concurrently watched descriptors rather than
// the number of descriptors ever seen.
//
// A Table is not safe for concurrent use, it is meant to be owned by exactly
// one event loop.
package fdtable

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/echoloop/echoloop/pkg/errors"
)

const (
	// Sentinel is the descriptor value of an unused slot.
	Sentinel = -1

	// DefaultInitialCapacity is the number of slots allocated up front.
	DefaultInitialCapacity = 1000

	// DefaultGrowthStep is the number of slots appended each time the table grows.
	DefaultGrowthStep = 100
)

// Table is a growable set of interest entries indexed by slot.
type Table struct {
	pfds     []unix.PollFd      // interest entries, submitted to poll(2) up to hwm
	ctxs     []interface{}      // per-slot attachments, same indexes as pfds
	hwm      int                // highest live index, -1 if the table is empty
	free     int                // smallest free index, always <= hwm+1
	live     int                // number of live entries
	growStep int                // number of slots appended on growth
	maxCap   int                // capacity limit, 0 means unbounded
	closeFD  func(fd int) error // closes a descriptor on removal
}

// New instantiates a Table with all slots free.
func New(opts ...Option) (*Table, error) {
	options := loadOptions(opts...)
	if options.InitialCapacity <= 0 || options.GrowthStep <= 0 ||
		options.MaxCapacity < 0 || (options.MaxCapacity > 0 && options.MaxCapacity < options.InitialCapacity) {
		return nil, errors.ErrInvalidTableSize
	}

	t := &Table{
		pfds:     make([]unix.PollFd, options.InitialCapacity),
		ctxs:     make([]interface{}, options.InitialCapacity),
		hwm:      -1,
		growStep: options.GrowthStep,
		maxCap:   options.MaxCapacity,
		closeFD:  options.Closer,
	}
	resetSlots(t.pfds)
	return t, nil
}

func resetSlots(pfds []unix.PollFd) {
	for i := range pfds {
		pfds[i] = unix.PollFd{Fd: Sentinel}
	}
}

// Add registers fd with the given interest mask and attachment, and returns
// the index of the slot it now occupies.
func (t *Table) Add(fd int, events int16, ctx interface{}) (int, error) {
	if fd < 0 {
		return -1, errors.ErrInvalidDescriptor
	}
	// The previous Add could not grow the table, try once more.
	if t.free == len(t.pfds) {
		if err := t.grow(); err != nil {
			return -1, err
		}
	}

	idx := t.free
	t.pfds[idx] = unix.PollFd{Fd: int32(fd), Events: events}
	t.ctxs[idx] = ctx
	t.live++
	if idx == t.hwm+1 {
		t.hwm++
	}

	// Prefer a hole below the watermark to growing the table.
	for i := idx + 1; i <= t.hwm; i++ {
		if t.pfds[i].Fd == Sentinel {
			t.free = i
			return idx, nil
		}
	}

	t.free = t.hwm + 1
	if t.free == len(t.pfds) {
		// Failing to grow here is not fatal for this entry, the next Add
		// reports it if no slot has been freed by then.
		_ = t.grow()
	}
	return idx, nil
}

func (t *Table) grow() error {
	oldCap := len(t.pfds)
	newCap := oldCap + t.growStep
	if t.maxCap > 0 && newCap > t.maxCap {
		newCap = t.maxCap
	}
	if newCap <= oldCap {
		return errors.ErrCapacityExhausted
	}

	pfds := make([]unix.PollFd, newCap)
	copy(pfds, t.pfds)
	resetSlots(pfds[oldCap:])
	ctxs := make([]interface{}, newCap)
	copy(ctxs, t.ctxs)
	t.pfds, t.ctxs = pfds, ctxs
	return nil
}

func (t *Table) checkIndex(idx int) error {
	if idx < 0 || idx > t.hwm || t.pfds[idx].Fd == Sentinel {
		return errors.ErrInvalidIndex
	}
	return nil
}

// Remove closes the descriptor at idx and frees its slot. The slot is freed
// even when closing the descriptor fails.
func (t *Table) Remove(idx int) error {
	if err := t.checkIndex(idx); err != nil {
		return err
	}

	fd := int(t.pfds[idx].Fd)
	t.pfds[idx] = unix.PollFd{Fd: Sentinel}
	t.ctxs[idx] = nil
	t.live--

	if idx < t.free {
		t.free = idx
	}
	if idx == t.hwm {
		for t.hwm >= 0 && t.pfds[t.hwm].Fd == Sentinel {
			t.hwm--
		}
		if t.free > t.hwm+1 {
			t.free = t.hwm + 1
		}
	}

	return os.NewSyscallError("close", t.closeFD(fd))
}

// Modify replaces the interest mask of the entry at idx.
func (t *Table) Modify(idx int, events int16) error {
	if err := t.checkIndex(idx); err != nil {
		return err
	}
	t.pfds[idx].Events = events
	t.pfds[idx].Revents = 0
	return nil
}

// View returns the watched prefix of the table, the slice aliases the table
// so poll(2) writes the observed masks straight into the entries.
func (t *Table) View() []unix.PollFd {
	return t.pfds[:t.hwm+1]
}

// Entry returns the entry at idx and whether it is live.
func (t *Table) Entry(idx int) (unix.PollFd, bool) {
	if idx < 0 || idx > t.hwm {
		return unix.PollFd{Fd: Sentinel}, false
	}
	pfd := t.pfds[idx]
	return pfd, pfd.Fd != Sentinel
}

// Context returns the attachment of the entry at idx, nil for free slots.
func (t *Table) Context(idx int) interface{} {
	if idx < 0 || idx > t.hwm {
		return nil
	}
	return t.ctxs[idx]
}

// Iterate calls f for every live entry in ascending index order until f returns false.
// f may remove the entry it is given.
func (t *Table) Iterate(f func(idx int, pfd unix.PollFd, ctx interface{}) bool) {
	for i := 0; i <= t.hwm; i++ {
		if pfd := t.pfds[i]; pfd.Fd != Sentinel {
			if !f(i, pfd, t.ctxs[i]) {
				return
			}
		}
	}
}

// Close removes every live entry, highest index first, and returns the first
// error encountered while closing descriptors.
func (t *Table) Close() (err error) {
	for t.hwm >= 0 {
		if e := t.Remove(t.hwm); e != nil && err == nil {
			err = e
		}
	}
	return
}

// Len returns the number of live entries.
func (t *Table) Len() int { return t.live }

// Cap returns the number of allocated slots.
func (t *Table) Cap() int { return len(t.pfds) }

// HighWatermark returns the highest live index, or -1 if the table is empty.
func (t *Table) HighWatermark() int { return t.hwm }

// FreeCursor returns the index the next Add will use.
func (t *Table) FreeCursor() int { return t.free }
