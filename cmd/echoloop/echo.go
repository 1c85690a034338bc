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


package main

import (
	"sync"

	"github.com/echoloop/echoloop"
	"github.com/echoloop/echoloop/pkg/logging"
)

// echoServer writes back whatever a read delivers and keeps the connection open.
type echoServer struct {
	echoloop.BuiltinEventEngine

	logger logging.Logger
	once   sync.Once
	ready  chan struct{}
	eng    echoloop.Engine
}

func newEchoServer(logger logging.Logger) *echoServer {
	return &echoServer{logger: logger, ready: make(chan struct{})}
}

func (es *echoServer) OnBoot(eng echoloop.Engine) echoloop.Action {
	es.eng = eng
	es.once.Do(func() { close(es.ready) })
	es.logger.Infof("echo server is listening on %s", eng.Addr())
	return echoloop.None
}

func (es *echoServer) OnShutdown(_ echoloop.Engine) {
	es.logger.Infof("echo server is shutting down")
}

func (es *echoServer) OnOpen(c echoloop.Conn) echoloop.Action {
	es.logger.Debugf("accepted %s as entry %d", c.RemoteAddr(), c.Index())
	return echoloop.None
}

func (es *echoServer) OnClose(c echoloop.Conn, err error) echoloop.Action {
	es.logger.Debugf("entry %d (%s) closed: %v", c.Index(), c.RemoteAddr(), err)
	return echoloop.None
}

func (es *echoServer) OnTraffic(c echoloop.Conn) echoloop.Action {
	_, _ = c.Write(c.Read())
	return echoloop.None
}
