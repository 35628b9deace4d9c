package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/constants"
)

func TestRegistry_NextWraps(t *testing.T) {
	r := NewRegistry(0x7FFE)
	assert.Equal(t, int32(0x7FFF), r.Next())
	assert.Equal(t, int32(1), r.Next(), "wraps to 1, never 0")
	assert.Equal(t, int32(2), r.Next())
}

func TestRegistry_NextSkipsPending(t *testing.T) {
	r := NewRegistry(0)
	r.Register(1, 0)
	r.Register(2, 0)
	assert.Equal(t, int32(3), r.Next())
}

func TestRegistry_NextInvalidStart(t *testing.T) {
	r := NewRegistry(-5)
	assert.Equal(t, int32(1), r.Next())
	r = NewRegistry(constants.SeqWrap + 10)
	assert.Equal(t, int32(1), r.Next())
}

func TestRegistry_NextNeverZero(t *testing.T) {
	r := NewRegistry(0)
	for range 3 * constants.SeqWrap {
		seq := r.Next()
		require.Positive(t, seq)
		require.Less(t, seq, int32(constants.SeqWrap))
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(0)
	p := r.Register(5, time.Second)

	assert.True(t, r.Resolve(5, []byte("ok")))
	assert.False(t, r.Resolve(5, []byte("again")), "resolved exactly once")
	assert.False(t, r.Resolve(6, nil))

	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), got)
	assert.Zero(t, r.Len())
}

func TestRegistry_Timeout(t *testing.T) {
	r := NewRegistry(0)
	p := r.Register(9, 20*time.Millisecond)

	_, err := p.Wait(context.Background())
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, r.Resolve(9, []byte("late")))
	assert.Zero(t, r.Len())
}

func TestRegistry_Fail(t *testing.T) {
	r := NewRegistry(0)
	p := r.Register(3, time.Second)
	boom := errors.New("boom")
	assert.True(t, r.Fail(3, boom))

	_, err := p.Wait(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry(0)
	ps := []*Pending{r.Register(1, time.Second), r.Register(2, 0), r.Register(3, time.Second)}

	r.CancelAll(ErrConnClosed)
	assert.Zero(t, r.Len())
	for _, p := range ps {
		_, err := p.Wait(context.Background())
		require.ErrorIs(t, err, ErrConnClosed)
	}
}

func TestRegistry_WaitContextCancel(t *testing.T) {
	r := NewRegistry(0)
	p := r.Register(4, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Len())
	assert.False(t, r.Resolve(4, nil))
}

func TestRegistry_ReRegisterFailsOlder(t *testing.T) {
	r := NewRegistry(0)
	old := r.Register(7, 0)
	fresh := r.Register(7, 0)

	_, err := old.Wait(context.Background())
	require.ErrorIs(t, err, ErrConnClosed)

	require.True(t, r.Resolve(7, []byte("x")))
	got, err := fresh.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

// Resolve, timeout and CancelAll race on the same entries; every waiter must
// see exactly one outcome.
func TestRegistry_ExactlyOnceUnderRace(t *testing.T) {
	const n = 500
	r := NewRegistry(0)
	pending := make([]*Pending, n)
	for i := range n {
		pending[i] = r.Register(int32(i+1), time.Millisecond*time.Duration(i%5))
	}

	var resolved atomic.Int32
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(seq int32) {
			defer wg.Done()
			if r.Resolve(seq, []byte{1}) {
				resolved.Add(1)
			}
		}(int32(i + 1))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.CancelAll(ErrConnClosed)
	}()
	wg.Wait()

	var ok, timedOut, cancelled int32
	for _, p := range pending {
		_, err := p.Wait(context.Background())
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTimeout):
			timedOut++
		case errors.Is(err, ErrConnClosed):
			cancelled++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, int32(n), ok+timedOut+cancelled)
	assert.Equal(t, resolved.Load(), ok)
	assert.Zero(t, r.Len())
}
