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

// Package goroutine provides the worker pool that runs echo clients
// concurrently, it is never used inside the event loop itself.
package goroutine

import (
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultAntsPoolSize sets up the capacity of worker pool, 64 * 1024.
	DefaultAntsPoolSize = 1 << 16

	// ExpiryDuration is the interval time to clean up those expired workers.
	ExpiryDuration = 10 * time.Second
)

func init() {
	// It releases the default pool from ants.
	ants.Release()
}

// Pool is the alias of ants.Pool.
type Pool = ants.Pool

// Default instantiates a blocking *Pool with the capacity of DefaultAntsPoolSize.
func Default() *Pool {
	p, _ := New(DefaultAntsPoolSize)
	return p
}

// New instantiates a blocking *Pool with the given capacity, Submit waits for
// an idle worker instead of failing when all workers are busy.
func New(size int) (*Pool, error) {
	return ants.NewPool(size, ants.WithOptions(ants.Options{
		ExpiryDuration: ExpiryDuration,
		Nonblocking:    false,
	}))
}
