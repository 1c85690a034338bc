//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd
// +build darwin dragonfly freebsd linux netbsd openbsd

package echoloop

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	errorx "github.com/echoloop/echoloop/pkg/errors"
	"github.com/echoloop/echoloop/pkg/logging"
)

type recordingHandler struct {
	BuiltinEventEngine
	events []string
	errs   []error
}

func (h *recordingHandler) OnOpen(c Conn) (action Action) {
	h.events = append(h.events, fmt.Sprintf("open:%d", c.Index()))
	return
}

func (h *recordingHandler) OnTraffic(c Conn) (action Action) {
	h.events = append(h.events, fmt.Sprintf("traffic:%d", c.Index()))
	return
}

func (h *recordingHandler) OnClose(c Conn, err error) (action Action) {
	h.events = append(h.events, fmt.Sprintf("close:%d", c.Index()))
	h.errs = append(h.errs, err)
	return
}

func (h *recordingHandler) reset() {
	h.events, h.errs = nil, nil
}

func newTestEngine(t *testing.T, h EventHandler, opts ...Option) *engine {
	options := loadOptions(opts...)
	options.Logger = logging.GetDefaultLogger()
	eng, err := newEngine(h, "tcp", "127.0.0.1:0", options)
	require.NoError(t, err)
	t.Cleanup(func() {
		eng.el.closeAll()
		eng.release()
	})
	return eng
}

// socketPair returns a non-blocking descriptor for the table and its peer.
func socketPair(t *testing.T) (local, peer int) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() { _ = unix.Close(fds[1]) })
	return fds[0], fds[1]
}

// readyOn reports the given table indices as readable and nothing else.
func readyOn(revents int16, indices ...int) func([]unix.PollFd, int) (int, error) {
	return func(fds []unix.PollFd, _ int) (int, error) {
		for i := range fds {
			fds[i].Revents = 0
		}
		for _, idx := range indices {
			fds[idx].Revents = revents
		}
		return len(indices), nil
	}
}

func TestEngineLayout(t *testing.T) {
	eng := newTestEngine(t, &recordingHandler{})
	assert.Equal(t, 0, eng.el.lnIndex)
	assert.Equal(t, 1, eng.el.wakeIndex)
	assert.Equal(t, 1, eng.el.table.HighWatermark())
	assert.Equal(t, DefaultReadBufferCap, len(eng.el.buffer))
	assert.Equal(t, stateListening, eng.el.state)
}

func TestDispatchOrder(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	peers := make(map[int]int)
	for i := 0; i < 6; i++ {
		local, peer := socketPair(t)
		c, err := el.register(local, nil)
		require.NoError(t, err)
		peers[c.Index()] = peer
	}
	assert.Equal(t, stateRunning, el.state)
	assert.Equal(t, 7, el.table.HighWatermark())

	// Churn the middle of the table, the holes are refilled lowest first.
	for _, idx := range []int{5, 3} {
		c := el.table.Context(idx).(*conn)
		require.NoError(t, el.close(c, nil))
		delete(peers, idx)
	}
	for _, want := range []int{3, 5} {
		local, peer := socketPair(t)
		c, err := el.register(local, nil)
		require.NoError(t, err)
		require.Equal(t, want, c.Index())
		peers[c.Index()] = peer
	}
	h.reset()

	for _, idx := range []int{7, 2, 5} {
		_, err := unix.Write(peers[idx], []byte("x"))
		require.NoError(t, err)
	}
	el.poll = readyOn(unix.POLLIN, 7, 2, 5)
	require.NoError(t, el.cycle())
	assert.Equal(t, []string{"traffic:2", "traffic:5", "traffic:7"}, h.events)
}

func TestListenerFirst(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	local, peer := socketPair(t)
	c, err := el.register(local, nil)
	require.NoError(t, err)
	require.Equal(t, 2, c.Index())
	_, err = unix.Write(peer, []byte("x"))
	require.NoError(t, err)

	client, err := net.Dial("tcp", eng.ln.addr.String())
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool {
		fds := []unix.PollFd{{Fd: int32(eng.ln.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	h.reset()
	el.poll = readyOn(unix.POLLIN, 0, 2)
	require.NoError(t, el.cycle())
	// The new connection lands at index 3 and is not serviced in this cycle.
	assert.Equal(t, []string{"open:3", "traffic:2"}, h.events)
	assert.Equal(t, 2, eng.countConn())
}

func TestErrorReadinessClosesWithoutIO(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	local, peer := socketPair(t)
	c, err := el.register(local, nil)
	require.NoError(t, err)
	_, err = unix.Write(peer, []byte("pending"))
	require.NoError(t, err)

	h.reset()
	el.poll = readyOn(unix.POLLIN|unix.POLLHUP, c.Index())
	require.NoError(t, el.cycle())
	assert.Equal(t, []string{"close:2"}, h.events)
	assert.ErrorIs(t, h.errs[0], errorx.ErrPeerHangup)
	assert.Equal(t, 0, eng.countConn())
	_, ok := el.table.Entry(2)
	assert.False(t, ok)
	assert.Equal(t, 1, el.table.HighWatermark())
}

func TestPeerClosed(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	local, peer := socketPair(t)
	c, err := el.register(local, nil)
	require.NoError(t, err)
	require.NoError(t, unix.Shutdown(peer, unix.SHUT_WR))

	h.reset()
	el.poll = readyOn(unix.POLLIN, c.Index())
	require.NoError(t, el.cycle())
	assert.Equal(t, []string{"close:2"}, h.events)
	assert.ErrorIs(t, h.errs[0], errorx.ErrPeerClosed)
}

func TestSpuriousReadiness(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	local, _ := socketPair(t)
	c, err := el.register(local, nil)
	require.NoError(t, err)

	h.reset()
	el.poll = readyOn(unix.POLLIN, c.Index())
	require.NoError(t, el.cycle())
	assert.Empty(t, h.events)
	assert.Equal(t, 1, eng.countConn())
}

func TestListenerFailure(t *testing.T) {
	eng := newTestEngine(t, &recordingHandler{})
	eng.el.poll = readyOn(unix.POLLNVAL, 0)
	assert.ErrorIs(t, eng.el.cycle(), errorx.ErrListenerFailure)
}

func TestPollErrors(t *testing.T) {
	eng := newTestEngine(t, &recordingHandler{})
	el := eng.el

	calls := 0
	el.poll = func(fds []unix.PollFd, _ int) (int, error) {
		calls++
		if calls == 1 {
			return -1, unix.EINTR
		}
		return 0, nil
	}
	require.NoError(t, el.cycle())
	assert.Equal(t, 2, calls)

	el.poll = func([]unix.PollFd, int) (int, error) { return -1, unix.EINVAL }
	err := el.cycle()
	var se *os.SyscallError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "poll", se.Syscall)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestWakePipeRunsTasks(t *testing.T) {
	eng := newTestEngine(t, &recordingHandler{})
	el := eng.el

	ran := 0
	for i := 0; i < 3; i++ {
		require.NoError(t, eng.trigger(func(interface{}) error {
			ran++
			return nil
		}, nil))
	}
	require.NoError(t, el.cycle())
	assert.Equal(t, 3, ran)
	assert.True(t, eng.tasks.Empty())

	require.NoError(t, eng.trigger(func(interface{}) error { return errorx.ErrEngineShutdown }, nil))
	assert.ErrorIs(t, el.cycle(), errorx.ErrEngineShutdown)
}

func TestShortWriteIsBuffered(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	local, peer := socketPair(t)
	c, err := el.register(local, nil)
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("a"), 4<<20)
	n, err := c.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	require.Greater(t, c.OutboundBuffered(), 0)
	pfd, _ := el.table.Entry(c.Index())
	assert.Equal(t, int16(unix.POLLOUT), pfd.Events)

	// Order is kept while bytes are pending.
	_, err = c.Write([]byte("tail"))
	require.NoError(t, err)
	want := append(payload, "tail"...)

	el.poll = func(fds []unix.PollFd, _ int) (int, error) { return unix.Poll(fds, 100) }
	var (
		received []byte
		buf      = make([]byte, 64<<10)
		deadline = time.Now().Add(10 * time.Second)
	)
	for len(received) < len(want) && time.Now().Before(deadline) {
		for {
			n, err := unix.Read(peer, buf)
			if err != nil || n <= 0 {
				break
			}
			received = append(received, buf[:n]...)
		}
		require.NoError(t, el.cycle())
	}
	assert.True(t, bytes.Equal(want, received))
	assert.Zero(t, c.OutboundBuffered())
	pfd, _ = el.table.Entry(c.Index())
	assert.Equal(t, int16(unix.POLLIN), pfd.Events)
	assert.Empty(t, h.events)
}

func TestWriteFailureClosesConnection(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	el := eng.el

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	c, err := el.register(fds[0], nil)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[1]))

	_, err = c.Write([]byte("lost"))
	require.ErrorIs(t, err, errorx.ErrIOFailed)
	h.reset()
	require.NoError(t, el.handleAction(c, None))
	assert.Equal(t, []string{"close:2"}, h.events)
	assert.ErrorIs(t, h.errs[0], errorx.ErrIOFailed)

	_, err = c.Write([]byte("again"))
	assert.ErrorIs(t, err, net.ErrClosed)
}

func TestCapacityExhaustedOnRegister(t *testing.T) {
	eng := newTestEngine(t, &recordingHandler{},
		WithTableInitialCap(2), WithTableGrowthStep(1), WithTableMaxCap(3))
	el := eng.el

	local, _ := socketPair(t)
	_, err := el.register(local, nil)
	require.NoError(t, err)

	local, _ = socketPair(t)
	_, err = el.register(local, nil)
	assert.ErrorIs(t, err, errorx.ErrCapacityExhausted)
	assert.Equal(t, 1, eng.countConn())
}

func TestAcceptWithoutPendingConnection(t *testing.T) {
	h := &recordingHandler{}
	eng := newTestEngine(t, h)
	eng.el.poll = readyOn(unix.POLLIN, 0)
	require.NoError(t, eng.el.cycle())
	assert.Empty(t, h.events)
	assert.Equal(t, stateListening, eng.el.state)
}

func TestAcceptFatalError(t *testing.T) {
	eng := newTestEngine(t, &recordingHandler{})
	var p [2]int
	require.NoError(t, unix.Pipe(p[:]))
	defer func() {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
	}()
	lnfd := eng.ln.fd
	eng.ln.fd = p[0]
	defer func() { eng.ln.fd = lnfd }()

	eng.el.poll = readyOn(unix.POLLIN, 0)
	err := eng.el.cycle()
	assert.ErrorIs(t, err, errorx.ErrAcceptSocket)
	assert.ErrorIs(t, err, unix.ENOTSOCK)
}

func TestAcceptAppliesLinger(t *testing.T) {
	assert.Empty(t, connSockOpts(loadOptions()))

	h := &recordingHandler{}
	eng := newTestEngine(t, h, WithLinger(0))
	client, err := net.Dial("tcp", eng.ln.addr.String())
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool {
		fds := []unix.PollFd{{Fd: int32(eng.ln.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		return err == nil && n == 1
	}, 5*time.Second, 10*time.Millisecond)

	eng.el.poll = readyOn(unix.POLLIN, 0)
	require.NoError(t, eng.el.cycle())
	require.Equal(t, []string{"open:2"}, h.events)

	pfd, ok := eng.el.table.Entry(2)
	require.True(t, ok)
	l, err := unix.GetsockoptLinger(int(pfd.Fd), unix.SOL_SOCKET, unix.SO_LINGER)
	require.NoError(t, err)
	assert.EqualValues(t, 1, l.Onoff)
	assert.EqualValues(t, 0, l.Linger)
}
