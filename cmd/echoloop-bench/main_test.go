package main

import (
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidFlags(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, run([]string{"-clients", "many"}, &stderr))
	stderr.Reset()
	assert.Equal(t, 1, run([]string{"-clients", "0"}, &stderr))
	assert.Contains(t, stderr.String(), "must be positive")
}

func TestAgainstPlainEchoServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}()
		}
	}()

	var stderr bytes.Buffer
	code := run([]string{"-addr", ln.Addr().String(), "-clients", "4", "-rounds", "5", "-size", "256"}, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr.String(), "failures=0")
}
