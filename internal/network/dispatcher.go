package network

import (
	"log/slog"
	"sync"

	"github.com/udisondev/goicq/internal/protocol"
)

// Handler consumes a push frame. Handlers run on the reader goroutine and
// must not block; spawn a goroutine for slow work.
type Handler func(f *protocol.Frame)

// Dispatcher routes decoded frames to the request registry or to push
// handlers. Each client owns one.
type Dispatcher struct {
	registry *Registry

	mu       sync.RWMutex
	handlers map[string][]Handler

	// OnDrop is called for frames nobody consumed. May be nil.
	OnDrop func(f *protocol.Frame)
}

// NewDispatcher creates a dispatcher resolving responses through registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		handlers: make(map[string][]Handler),
	}
}

// OnCommand registers h for pushes of cmd. Several handlers per command are
// called in registration order.
func (d *Dispatcher) OnCommand(cmd string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[cmd] = append(d.handlers[cmd], h)
}

// Dispatch routes one frame: a pending request with the same seq wins,
// then command handlers; anything else is dropped.
func (d *Dispatcher) Dispatch(f *protocol.Frame) {
	if d.registry.Resolve(f.Seq, f.Payload) {
		return
	}

	d.mu.RLock()
	hs := d.handlers[f.Command]
	d.mu.RUnlock()

	if len(hs) == 0 {
		slog.Debug("dropping unhandled frame", "command", f.Command, "seq", f.Seq, "size", len(f.Payload))
		if d.OnDrop != nil {
			d.OnDrop(f)
		}
		return
	}
	for _, h := range hs {
		h(f)
	}
}
