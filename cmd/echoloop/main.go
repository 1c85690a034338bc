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


// Command echoloop runs a single-threaded TCP echo server.
//
//	echoloop [-c config.yaml] [-buffer n] [-log-file path] [-log-level n] <host> <port>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/echoloop/echoloop"
	"github.com/echoloop/echoloop/pkg/config"
	errorx "github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("echoloop", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("c", "", "YAML configuration file")
	bufferCap := fs.Int("buffer", 0, "bytes taken by a single read, overrides the configuration")
	logFile := fs.String("log-file", "", "write logs to this rotating file instead of stdout")
	logLevel := fs.String("log-level", "", "logging level, a zap level name or its integer value")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] <host-ipv4-address> <port-number>\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(stderr, "echoloop: %v\n", err)
			return 1
		}
	}

	switch fs.NArg() {
	case 2:
		port, err := strconv.ParseUint(fs.Arg(1), 10, 16)
		if err != nil {
			fs.Usage()
			return 0
		}
		cfg.Address = "tcp://" + net.JoinHostPort(fs.Arg(0), strconv.FormatUint(port, 10))
	case 0:
		if *configPath == "" {
			fs.Usage()
			return 0
		}
	default:
		fs.Usage()
		return 0
	}
	if *bufferCap != 0 {
		cfg.ReadBufferCap = *bufferCap
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	opts, err := cfg.Options()
	if err != nil {
		fmt.Fprintf(stderr, "echoloop: %v\n", err)
		return 1
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	if cfg.Log.File != "" {
		logger, flush, err := logging.CreateLoggerAsLocalFile(cfg.Log.File, level)
		if err != nil {
			fmt.Fprintf(stderr, "echoloop: %v\n", err)
			return 1
		}
		logging.SetDefaultLoggerAndFlusher(logger, flush)
	} else {
		logging.SetDefaultLoggerAndFlusher(logging.CreateLoggerAsStdout(level))
	}
	defer logging.Cleanup()
	logger := logging.GetDefaultLogger()
	opts = append(opts, echoloop.WithLogger(logger))

	es := newEchoServer(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-es.ready:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := es.eng.Stop(stopCtx); err != nil && !errors.Is(err, errorx.ErrEngineInShutdown) {
			logger.Warnf("stopping the engine: %v", err)
		}
	}()

	if err = echoloop.Run(es, cfg.Address, opts...); err != nil {
		logger.Errorf("echoloop exited with error: %v", err)
		return 1
	}
	return 0
}
