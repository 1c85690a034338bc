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


// Package loadgen drives an echo server with concurrent clients and checks
// that every byte comes back unchanged.
package loadgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	bbPool "github.com/echoloop/echoloop/pkg/pool/bytebuffer"
	goPool "github.com/echoloop/echoloop/pkg/pool/goroutine"
)

// ErrMismatch is reported when the server sends back something else than what it got.
var ErrMismatch = errors.New("loadgen: echoed bytes differ from the payload")

var newPool = goPool.New

// DefaultTimeout bounds each round trip when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Config describes one load run.
type Config struct {
	Addr        string        // host:port of the echo server
	Clients     int           // concurrent connections
	Rounds      int           // round trips per connection
	PayloadSize int           // bytes per round trip
	Timeout     time.Duration // deadline for a single round trip
}

// Report summarizes a load run.
type Report struct {
	Clients  int
	Failures int
	Bytes    int64 // echoed bytes that were verified
	Elapsed  time.Duration
	Err      error // first failure, if any
}

// Throughput returns the verified echo rate in bytes per second.
func (r *Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}

func (r *Report) String() string {
	return fmt.Sprintf("clients=%d failures=%d bytes=%d elapsed=%s throughput=%.2fMB/s",
		r.Clients, r.Failures, r.Bytes, r.Elapsed, r.Throughput()/(1<<20))
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Addr == "":
		return errors.New("loadgen: empty address")
	case cfg.Clients <= 0, cfg.Rounds <= 0, cfg.PayloadSize <= 0:
		return fmt.Errorf("loadgen: clients, rounds and size must be positive, got %d/%d/%d",
			cfg.Clients, cfg.Rounds, cfg.PayloadSize)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return nil
}

// Run connects cfg.Clients clients to cfg.Addr and has each of them echo
// cfg.Rounds random payloads. Client failures are counted in the report,
// the returned error only covers an unusable configuration.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	pool, err := newPool(cfg.Clients)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		bytesOK  int64
		failures int32
		report   = &Report{Clients: cfg.Clients}
	)
	start := time.Now()
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		seed := start.UnixNano() + int64(i)
		err = pool.Submit(func() {
			defer wg.Done()
			n, err := runClient(ctx, &cfg, seed)
			atomic.AddInt64(&bytesOK, n)
			if err != nil {
				atomic.AddInt32(&failures, 1)
				mu.Lock()
				if report.Err == nil {
					report.Err = err
				}
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			atomic.AddInt32(&failures, 1)
			mu.Lock()
			if report.Err == nil {
				report.Err = err
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	report.Bytes = atomic.LoadInt64(&bytesOK)
	report.Failures = int(atomic.LoadInt32(&failures))
	return report, nil
}

func runClient(ctx context.Context, cfg *Config, seed int64) (n int64, err error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	c, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	payload := bbPool.Get()
	defer bbPool.Put(payload)
	payload.B = append(payload.B[:0], make([]byte, cfg.PayloadSize)...)
	got := make([]byte, cfg.PayloadSize)
	rnd := rand.New(rand.NewSource(seed))

	for r := 0; r < cfg.Rounds; r++ {
		if err = ctx.Err(); err != nil {
			return
		}
		_, _ = rnd.Read(payload.B)
		if err = c.SetDeadline(time.Now().Add(cfg.Timeout)); err != nil {
			return
		}
		// The echo comes back while the payload is still being written, a
		// payload larger than both socket buffers would stall otherwise.
		writeErr := make(chan error, 1)
		go func() {
			_, err := c.Write(payload.B)
			writeErr <- err
		}()
		_, err = io.ReadFull(c, got)
		if werr := <-writeErr; werr != nil {
			return n, werr
		}
		if err != nil {
			return
		}
		if !bytes.Equal(payload.B, got) {
			return n, ErrMismatch
		}
		n += int64(cfg.PayloadSize)
	}
	return
}
