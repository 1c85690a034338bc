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

package fdtable

import "golang.org/x/sys/unix"

// Option is a function that will set up option.
type Option func(opts *Options)

func loadOptions(options ...Option) *Options {
	opts := &Options{
		InitialCapacity: DefaultInitialCapacity,
		GrowthStep:      DefaultGrowthStep,
		Closer:          unix.Close,
	}
	for _, option := range options {
		option(opts)
	}
	return opts
}

// Options are the sizing and ownership settings of a Table.
type Options struct {
	// InitialCapacity is the number of slots allocated by New.
	InitialCapacity int

	// GrowthStep is the number of slots appended every time the table is full.
	GrowthStep int

	// MaxCapacity caps the number of slots, 0 leaves the table unbounded.
	MaxCapacity int

	// Closer closes a descriptor when its entry is removed.
	Closer func(fd int) error
}

// WithInitialCapacity sets up the initial number of slots.
func WithInitialCapacity(n int) Option {
	return func(opts *Options) {
		opts.InitialCapacity = n
	}
}

// WithGrowthStep sets up the number of slots added on each growth.
func WithGrowthStep(n int) Option {
	return func(opts *Options) {
		opts.GrowthStep = n
	}
}

// WithMaxCapacity sets up the maximum number of slots.
func WithMaxCapacity(n int) Option {
	return func(opts *Options) {
		opts.MaxCapacity = n
	}
}

// WithCloser replaces unix.Close as the function closing removed descriptors.
func WithCloser(closer func(fd int) error) Option {
	return func(opts *Options) {
		if closer != nil {
			opts.Closer = closer
		}
	}
}
