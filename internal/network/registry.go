package network

import (
	"context"
	"sync"
	"time"

	"github.com/udisondev/goicq/internal/constants"
)

type result struct {
	payload []byte
	err     error
}

// Pending — ожидающий ответа запрос. Завершается ровно один раз:
// ответом, таймаутом или закрытием соединения.
type Pending struct {
	seq   int32
	reg   *Registry
	done  chan result
	timer *time.Timer
}

// Seq returns the sequence id the request was sent with.
func (p *Pending) Seq() int32 {
	return p.seq
}

// Wait blocks until the request completes or ctx is done. On ctx
// cancellation the entry is removed so a late response is dropped.
func (p *Pending) Wait(ctx context.Context) ([]byte, error) {
	select {
	case r := <-p.done:
		return r.payload, r.err
	case <-ctx.Done():
		if p.reg.complete(p.seq, p, result{err: ctx.Err()}) {
			return nil, ctx.Err()
		}
		// lost the race against a completion; take its result
		r := <-p.done
		return r.payload, r.err
	}
}

// Registry maps in-flight sequence ids to their waiters.
type Registry struct {
	mu      sync.Mutex
	seq     int32
	pending map[int32]*Pending
}

// NewRegistry creates a registry whose first allocated id follows start.
func NewRegistry(start int32) *Registry {
	if start < 0 || start >= constants.SeqWrap {
		start = 0
	}
	return &Registry{
		seq:     start,
		pending: make(map[int32]*Pending),
	}
}

// Next allocates a sequence id in [1, 0x8000), skipping ids still pending.
func (r *Registry) Next() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range constants.SeqWrap {
		r.seq++
		if r.seq >= constants.SeqWrap {
			r.seq = 1
		}
		if _, busy := r.pending[r.seq]; !busy {
			return r.seq
		}
	}
	return r.seq
}

// Register adds a waiter for seq. A non-positive timeout disables the timer.
// Registering a seq that is already pending fails the older waiter.
func (r *Registry) Register(seq int32, timeout time.Duration) *Pending {
	p := &Pending{
		seq:  seq,
		reg:  r,
		done: make(chan result, 1),
	}

	r.mu.Lock()
	old := r.pending[seq]
	r.pending[seq] = p
	if timeout > 0 {
		p.timer = time.AfterFunc(timeout, func() {
			r.complete(seq, p, result{err: ErrTimeout})
		})
	}
	r.mu.Unlock()

	if old != nil {
		old.finish(result{err: ErrConnClosed})
	}
	return p
}

// Resolve delivers payload to the waiter of seq. It reports false when no
// request with that id is pending.
func (r *Registry) Resolve(seq int32, payload []byte) bool {
	r.mu.Lock()
	p := r.pending[seq]
	r.mu.Unlock()
	if p == nil {
		return false
	}
	return r.complete(seq, p, result{payload: payload})
}

// Fail completes the waiter of seq with err.
func (r *Registry) Fail(seq int32, err error) bool {
	r.mu.Lock()
	p := r.pending[seq]
	r.mu.Unlock()
	if p == nil {
		return false
	}
	return r.complete(seq, p, result{err: err})
}

// CancelAll fails every pending request with err.
func (r *Registry) CancelAll(err error) {
	r.mu.Lock()
	all := r.pending
	r.pending = make(map[int32]*Pending)
	r.mu.Unlock()

	for _, p := range all {
		p.finish(result{err: err})
	}
}

// Len returns the number of pending requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// complete removes p if it is still the entry for seq and delivers res.
// Only the caller that removes the entry delivers.
func (r *Registry) complete(seq int32, p *Pending, res result) bool {
	r.mu.Lock()
	if r.pending[seq] != p {
		r.mu.Unlock()
		return false
	}
	delete(r.pending, seq)
	r.mu.Unlock()

	p.finish(res)
	return true
}

func (p *Pending) finish(res result) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.done <- res
}
