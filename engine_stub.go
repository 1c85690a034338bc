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

//go:build !darwin && !dragonfly && !freebsd && !linux && !netbsd && !openbsd
// +build !darwin,!dragonfly,!freebsd,!linux,!netbsd,!openbsd

package echoloop

import (
	"context"
	"net"

	"github.com/echoloop/echoloop/pkg/errors"
)

type listener struct {
	addr net.Addr
}

type engine struct {
	ln *listener
}

func (eng *engine) isInShutdown() bool {
	return true
}

func (eng *engine) countConn() int {
	return 0
}

func (eng *engine) stop(_ context.Context) error {
	return errors.ErrUnsupportedPlatform
}

func run(_ EventHandler, _, _ string, _ *Options) error {
	return errors.ErrUnsupportedPlatform
}
