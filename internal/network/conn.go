package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/udisondev/goicq/internal/protocol"
)

// readBufSize is the socket read chunk; frames span any number of chunks.
const readBufSize = 16 << 10

// Conn is one TCP connection to the cluster. Writes are serialized; reads
// belong to the single goroutine running ReadLoop.
type Conn struct {
	conn   net.Conn
	addr   string
	stream *protocol.Stream

	writeMu sync.Mutex

	lastRecv  atomic.Int64
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial tries addrs in order and returns the first connection that succeeds.
func Dial(ctx context.Context, addrs []string, timeout time.Duration, maxFrame int) (*Conn, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no endpoints", ErrTransport)
	}
	d := net.Dialer{Timeout: timeout}
	var errs []error
	for _, addr := range addrs {
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			slog.Warn("endpoint unreachable", "addr", addr, "error", err)
			errs = append(errs, err)
			continue
		}
		return NewConn(c, maxFrame), nil
	}
	return nil, fmt.Errorf("%w: dialing: %w", ErrTransport, errors.Join(errs...))
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, maxFrame int) *Conn {
	conn := &Conn{
		conn:   c,
		addr:   c.RemoteAddr().String(),
		stream: protocol.NewStream(maxFrame),
		closed: make(chan struct{}),
	}
	conn.lastRecv.Store(time.Now().UnixNano())
	return conn
}

// Addr returns the remote address.
func (c *Conn) Addr() string {
	return c.addr
}

// Write sends one complete frame.
func (c *Conn) Write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: writing frame: %w", ErrTransport, err)
	}
	return nil
}

// LastReceived returns when bytes last arrived.
func (c *Conn) LastReceived() time.Time {
	return time.Unix(0, c.lastRecv.Load())
}

// ReadLoop reads until the connection fails or ctx is done, passing each
// reassembled frame (without length prefix) to onFrame in receive order.
func (c *Conn) ReadLoop(ctx context.Context, onFrame func(frame []byte)) error {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	buf := make([]byte, readBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.lastRecv.Store(time.Now().UnixNano())
			c.stream.Feed(buf[:n])
			for {
				frame, ok, ferr := c.stream.Next()
				if ferr != nil {
					_ = c.Close()
					return fmt.Errorf("%w: %w", ErrTransport, ferr)
				}
				if !ok {
					break
				}
				onFrame(frame)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return ErrConnClosed
			}
			return fmt.Errorf("%w: reading: %w", ErrTransport, err)
		}
	}
}

// Close closes the socket. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

// Closed is closed once Close has been called.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}
