package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/protocol"
)

func TestDispatcher_ResponseWinsOverHandler(t *testing.T) {
	r := NewRegistry(0)
	d := NewDispatcher(r)

	called := false
	d.OnCommand("OidbSvc.0x88d_0", func(*protocol.Frame) { called = true })

	p := r.Register(12, time.Second)
	d.Dispatch(&protocol.Frame{Seq: 12, Command: "OidbSvc.0x88d_0", Payload: []byte("resp")})

	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("resp"), got)
	assert.False(t, called)
}

func TestDispatcher_HandlersInOrder(t *testing.T) {
	d := NewDispatcher(NewRegistry(0))

	var order []int
	d.OnCommand("OnlinePush.ReqPush", func(*protocol.Frame) { order = append(order, 1) })
	d.OnCommand("OnlinePush.ReqPush", func(*protocol.Frame) { order = append(order, 2) })

	d.Dispatch(&protocol.Frame{Seq: 99, Command: "OnlinePush.ReqPush"})
	assert.Equal(t, []int{1, 2}, order)
}

func TestDispatcher_Drop(t *testing.T) {
	d := NewDispatcher(NewRegistry(0))

	var dropped *protocol.Frame
	d.OnDrop = func(f *protocol.Frame) { dropped = f }
	f := &protocol.Frame{Seq: 1, Command: "Unknown.Cmd"}
	d.Dispatch(f)
	assert.Same(t, f, dropped)
}

func TestDispatcher_ReceiveOrderPreserved(t *testing.T) {
	d := NewDispatcher(NewRegistry(0))

	var seqs []int32
	d.OnCommand("push", func(f *protocol.Frame) { seqs = append(seqs, f.Seq) })
	for i := int32(1); i <= 50; i++ {
		d.Dispatch(&protocol.Frame{Seq: i, Command: "push"})
	}
	require.Len(t, seqs, 50)
	for i, s := range seqs {
		assert.Equal(t, int32(i+1), s)
	}
}
