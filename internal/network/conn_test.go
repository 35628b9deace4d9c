package network

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/testutil"
)

func frameOf(payload string) []byte {
	b := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(b, uint32(len(b)))
	copy(b[4:], payload)
	return b
}

func TestConn_ReadLoopReassembles(t *testing.T) {
	client, server := testutil.PipeConn(t)
	c := NewConn(client, 0)

	frames := make(chan string, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- c.ReadLoop(context.Background(), func(f []byte) { frames <- string(f) })
	}()

	wire := append(frameOf("one"), frameOf("two")...)
	for _, b := range wire {
		_, err := server.Write([]byte{b})
		require.NoError(t, err)
	}
	assert.Equal(t, "one", <-frames)
	assert.Equal(t, "two", <-frames)

	require.NoError(t, server.Close())
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrConnClosed)
	case <-time.After(constants.TestEventWait):
		t.Fatal("read loop did not stop")
	}
}

func TestConn_ReadLoopBadLength(t *testing.T) {
	client, server := testutil.PipeConn(t)
	c := NewConn(client, 64)

	errc := make(chan error, 1)
	go func() { errc <- c.ReadLoop(context.Background(), func([]byte) {}) }()

	_, err := server.Write([]byte{0, 0, 1, 0})
	require.NoError(t, err)
	require.ErrorIs(t, <-errc, ErrTransport)
	<-c.Closed()
}

func TestConn_ContextStopsLoop(t *testing.T) {
	client, server := testutil.PipeConn(t)
	defer server.Close()
	c := NewConn(client, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.ReadLoop(ctx, func([]byte) {}) }()
	cancel()

	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(constants.TestEventWait):
		t.Fatal("read loop ignored cancellation")
	}
}

func TestConn_WriteAfterClose(t *testing.T) {
	client, server := testutil.PipeConn(t)
	defer server.Close()
	c := NewConn(client, 0)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "idempotent")
	require.ErrorIs(t, c.Write([]byte{1}), ErrConnClosed)
}

func TestDial_NoEndpoints(t *testing.T) {
	_, err := Dial(context.Background(), nil, time.Second, 0)
	require.ErrorIs(t, err, ErrTransport)
}

func TestDial_FirstReachable(t *testing.T) {
	ln, addr := testutil.ListenTCP(t)
	go func() {
		if c, err := ln.Accept(); err == nil {
			defer c.Close()
			time.Sleep(50 * time.Millisecond)
		}
	}()

	// a closed listener's port refuses connections
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	require.NoError(t, dead.Close())

	c, err := Dial(context.Background(), []string{deadAddr, addr}, time.Second, 0)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, addr, c.Addr())
}
