package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/goicq/internal/event"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/network"
	"github.com/udisondev/goicq/internal/protocol"
)

func (c *Client) dial(ctx context.Context) error {
	addrs, err := c.endpoints(ctx)
	if err != nil {
		return err
	}
	conn, err := network.Dial(ctx, addrs, c.cfg.DialTimeout, c.cfg.MaxFrameSize)
	if err != nil {
		return err
	}
	slog.Info("connected", "uin", c.sess.Uin(), "addr", conn.Addr())
	c.attach(conn)
	return nil
}

// attach makes conn current and starts its reader and heartbeat. The
// supervisor waits for both and decides whether to reconnect.
func (c *Client) attach(conn *network.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		return conn.ReadLoop(gctx, c.onFrame)
	})
	g.Go(func() error {
		return c.heartbeat(gctx, conn)
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.supervise(conn, g)
	}()
}

// detach closes conn if it is still current.
func (c *Client) detach(conn *network.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) onFrame(b []byte) {
	f, err := protocol.ParseFrame(b, c.sess.D2Key())
	if err != nil {
		var rc *protocol.RetCodeError
		if errors.As(err, &rc) && f != nil {
			slog.Warn("server returned error", "seq", f.Seq, "command", f.Command, "code", rc.Code, "message", rc.Message)
			c.registry.Fail(f.Seq, err)
			return
		}
		c.cfg.Metrics.FramesDropped.Inc()
		slog.Debug("dropping undecodable frame", "error", err)
		return
	}
	c.cfg.Metrics.FramesIn.WithLabelValues(f.Command).Inc()
	c.dispatch.Dispatch(f)
}

func (c *Client) supervise(conn *network.Conn, g *errgroup.Group) {
	err := g.Wait()

	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	closed, kicked := c.closed, c.kicked
	c.mu.Unlock()

	// a replaced connection was torn down by whoever replaced it
	if !current {
		return
	}
	c.registry.CancelAll(network.ErrConnClosed)
	c.cfg.Metrics.PendingRequests.Set(0)

	if closed || kicked {
		c.sess.setStatus(StatusOffline)
		return
	}
	if prev := c.sess.setStatus(StatusConnecting); prev != StatusOnline {
		c.sess.setStatus(StatusOffline)
		slog.Info("connection closed before online", "uin", c.sess.Uin(), "error", err)
		return
	}
	slog.Warn("connection lost", "uin", c.sess.Uin(), "error", err)
	c.reconnect()
}

// reconnect retries with a fixed delay until the session is restored,
// MaxReconnects is exceeded or the client is closed.
func (c *Client) reconnect() {
	c.mu.Lock()
	c.losses++
	losses := c.losses
	c.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if c.cfg.MaxReconnects > 0 && attempt > c.cfg.MaxReconnects {
			c.sess.setStatus(StatusOffline)
			slog.Error("giving up reconnecting", "uin", c.sess.Uin(), "attempts", attempt-1)
			c.emit(event.Offline{Reason: event.OfflineNetwork, Message: "reconnect attempts exhausted"})
			return
		}
		c.sess.setStatus(StatusConnecting)
		c.cfg.Metrics.Reconnects.Inc()
		c.emit(event.Reconnecting{Attempt: attempt})

		t := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-c.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		err := c.restore(c.ctx)
		if err == nil {
			slog.Info("reconnected", "uin", c.sess.Uin(), "attempt", attempt, "losses", losses)
			return
		}
		if c.ctx.Err() != nil {
			return
		}
		var le *login.Error
		if errors.As(err, &le) {
			// continuation waits for the caller, a terminal failure needs new credentials
			slog.Warn("reconnect needs login", "uin", c.sess.Uin(), "error", err)
			return
		}
		slog.Warn("reconnect failed", "uin", c.sess.Uin(), "attempt", attempt, "error", err)
	}
}

// restore dials and registers with the existing bundle. A rejected
// register falls back to a full login.
func (c *Client) restore(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	err := c.resumeRegister(ctx)
	if err != nil {
		var le *login.Error
		if !errors.As(err, &le) && conn != nil {
			c.detach(conn)
		}
	}
	return err
}

func (c *Client) resumeRegister(ctx context.Context) error {
	if c.sess.Sig().HasToken() {
		err := c.register(ctx)
		if err == nil {
			return nil
		}
		slog.Warn("register with stored bundle failed, logging in", "uin", c.sess.Uin(), "error", err)
		c.sess.setStatus(StatusConnecting)
	}
	return c.Login(ctx)
}
