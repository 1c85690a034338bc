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


// Command echoloop-bench measures an echo server by driving it with
// concurrent clients that verify every echoed byte.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echoloop/echoloop/pkg/loadgen"
	"github.com/echoloop/echoloop/pkg/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("echoloop-bench", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cfg loadgen.Config
	fs.StringVar(&cfg.Addr, "addr", "127.0.0.1:9000", "address of the echo server")
	fs.IntVar(&cfg.Clients, "clients", 64, "number of concurrent clients")
	fs.IntVar(&cfg.Rounds, "rounds", 1000, "round trips per client")
	fs.IntVar(&cfg.PayloadSize, "size", 1024, "payload bytes per round trip")
	fs.DurationVar(&cfg.Timeout, "timeout", loadgen.DefaultTimeout, "deadline for a single round trip")
	if err := fs.Parse(args); err != nil {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logging.Cleanup()

	logging.Infof("benchmarking %s with %d clients x %d rounds of %d bytes",
		cfg.Addr, cfg.Clients, cfg.Rounds, cfg.PayloadSize)
	report, err := loadgen.Run(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "echoloop-bench: %v\n", err)
		return 1
	}
	fmt.Fprintln(stderr, report)
	if report.Failures > 0 {
		logging.Errorf("%d of %d clients failed, first error: %v", report.Failures, report.Clients, report.Err)
		return 1
	}
	logging.Infof("finished in %s", report.Elapsed.Round(time.Millisecond))
	return 0
}
