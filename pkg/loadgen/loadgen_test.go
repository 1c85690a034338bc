package loadgen

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echoloop/echoloop"
	goPool "github.com/echoloop/echoloop/pkg/pool/goroutine"
)

type echoServer struct {
	echoloop.BuiltinEventEngine
	started chan echoloop.Engine
}

func (s *echoServer) OnBoot(eng echoloop.Engine) echoloop.Action {
	s.started <- eng
	return echoloop.None
}

func (s *echoServer) OnTraffic(c echoloop.Conn) echoloop.Action {
	_, _ = c.Write(c.Read())
	return echoloop.None
}

func TestRunAgainstEngine(t *testing.T) {
	s := &echoServer{started: make(chan echoloop.Engine, 1)}
	errCh := make(chan error, 1)
	go func() {
		errCh <- echoloop.Run(s, "tcp://127.0.0.1:0", echoloop.WithReadBufferCap(512))
	}()
	var eng echoloop.Engine
	select {
	case eng = <-s.started:
	case err := <-errCh:
		t.Fatalf("engine exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not boot")
	}

	report, err := Run(context.Background(), Config{
		Addr:        eng.Addr().String(),
		Clients:     8,
		Rounds:      10,
		PayloadSize: 2048,
	})
	require.NoError(t, err)
	assert.NoError(t, report.Err)
	assert.Zero(t, report.Failures)
	assert.EqualValues(t, 8*10*2048, report.Bytes)
	assert.Greater(t, report.Throughput(), 0.0)
	assert.Contains(t, report.String(), "failures=0")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(ctx))
	require.NoError(t, <-errCh)
}

func TestRunRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	report, err := Run(context.Background(), Config{
		Addr:        addr,
		Clients:     3,
		Rounds:      1,
		PayloadSize: 16,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Failures)
	assert.Error(t, report.Err)
	assert.Zero(t, report.Bytes)
}

func TestRunInvalidConfig(t *testing.T) {
	tests := []Config{
		{Clients: 1, Rounds: 1, PayloadSize: 1},
		{Addr: "127.0.0.1:1", Rounds: 1, PayloadSize: 1},
		{Addr: "127.0.0.1:1", Clients: 1, PayloadSize: 1},
		{Addr: "127.0.0.1:1", Clients: 1, Rounds: 1},
	}
	for _, cfg := range tests {
		_, err := Run(context.Background(), cfg)
		assert.Error(t, err)
	}
}

func TestMismatchDetected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 8)
		if _, err := c.Read(buf); err == nil {
			_, _ = c.Write([]byte("garbage!"))
		}
	}()

	report, err := Run(context.Background(), Config{
		Addr:        ln.Addr().String(),
		Clients:     1,
		Rounds:      1,
		PayloadSize: 8,
		Timeout:     5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failures)
	assert.ErrorIs(t, report.Err, ErrMismatch)
}

func TestRunLargePayload(t *testing.T) {
	s := &echoServer{started: make(chan echoloop.Engine, 1)}
	errCh := make(chan error, 1)
	go func() {
		errCh <- echoloop.Run(s, "tcp://127.0.0.1:0")
	}()
	var eng echoloop.Engine
	select {
	case eng = <-s.started:
	case err := <-errCh:
		t.Fatalf("engine exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not boot")
	}

	report, err := Run(context.Background(), Config{
		Addr:        eng.Addr().String(),
		Clients:     2,
		Rounds:      2,
		PayloadSize: 8 << 20,
		Timeout:     30 * time.Second,
	})
	require.NoError(t, err)
	assert.NoError(t, report.Err)
	assert.Zero(t, report.Failures)
	assert.EqualValues(t, 2*2*(8<<20), report.Bytes)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(ctx))
	require.NoError(t, <-errCh)
}

func TestSubmitFailureIsReported(t *testing.T) {
	defer func(f func(int) (*goPool.Pool, error)) { newPool = f }(newPool)
	newPool = func(size int) (*goPool.Pool, error) {
		p, err := goPool.New(size)
		if err == nil {
			p.Release()
		}
		return p, err
	}

	report, err := Run(context.Background(), Config{
		Addr:        "127.0.0.1:1",
		Clients:     2,
		Rounds:      1,
		PayloadSize: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failures)
	assert.Error(t, report.Err)
}
