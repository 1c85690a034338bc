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

/*
Package echoloop is a single-threaded, readiness-based TCP server engine built
directly on poll(2).

One goroutine owns a listening socket and a dense table of watched
descriptors. Each cycle it blocks in poll over the table, accepts at most one
new connection when the listener is readable, and then services every ready
client in ascending table order by handing the bytes of one bounded read to
the EventHandler.

Echo server built upon echoloop is shown below:

	package main

	import (
		"log"

		"github.com/echoloop/echoloop"
	)

	type echoServer struct {
		echoloop.BuiltinEventEngine
	}

	func (es *echoServer) OnTraffic(c echoloop.Conn) echoloop.Action {
		_, _ = c.Write(c.Read())
		return echoloop.None
	}

	func main() {
		log.Fatal(echoloop.Run(&echoServer{}, "tcp://127.0.0.1:9000"))
	}
*/
package echoloop
