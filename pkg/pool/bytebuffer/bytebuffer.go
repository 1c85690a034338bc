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

// Package bytebuffer pools the growable byte buffers that hold bytes a
// connection could not write in one go.
package bytebuffer

import "github.com/valyala/bytebufferpool"

// ByteBuffer is the alias of bytebufferpool.ByteBuffer.
type ByteBuffer = bytebufferpool.ByteBuffer

// Pool is a calibrated pool of byte buffers, each user with a distinct size
// profile should own one.
type Pool struct {
	p bytebufferpool.Pool
}

// Get returns an empty byte buffer from the pool.
func (p *Pool) Get() *ByteBuffer {
	return p.p.Get()
}

// Put returns the byte buffer to the pool, nil is ignored.
func (p *Pool) Put(b *ByteBuffer) {
	if b != nil {
		p.p.Put(b)
	}
}

var builtinPool Pool

// Get returns an empty byte buffer from the built-in pool.
func Get() *ByteBuffer {
	return builtinPool.Get()
}

// Put returns the byte buffer to the built-in pool.
func Put(b *ByteBuffer) {
	builtinPool.Put(b)
}
