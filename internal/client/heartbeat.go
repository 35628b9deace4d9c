package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/network"
	"github.com/udisondev/goicq/internal/protocol"
)

// errHeartbeat ends a connection whose heartbeat went unanswered.
var errHeartbeat = errors.New("heartbeat unanswered")

// heartbeat pings the server every HeartbeatInterval while online. A failed
// ping is retried once; the connection is torn down only when the retry
// fails too and nothing arrived within HeartbeatGrace.
func (c *Client) heartbeat(ctx context.Context, conn *network.Conn) error {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if c.sess.Status() != StatusOnline {
			continue
		}

		err := c.ping(ctx)
		if err != nil && ctx.Err() == nil {
			c.cfg.Metrics.HeartbeatFailures.Inc()
			slog.Warn("heartbeat failed, retrying", "uin", c.sess.Uin(), "error", err)
			err = c.ping(ctx)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.cfg.Metrics.HeartbeatFailures.Inc()
			if time.Since(conn.LastReceived()) > c.cfg.HeartbeatGrace {
				slog.Error("heartbeat lost, closing connection", "uin", c.sess.Uin(), "error", err)
				_ = conn.Close()
				return errHeartbeat
			}
			continue
		}
		c.maybeRefresh(ctx)
	}
}

func (c *Client) ping(ctx context.Context) error {
	seq := c.registry.Next()
	frame, err := c.loginFrame(seq, constants.CmdHeartbeat, protocol.EncryptNone, nil)
	if err != nil {
		return err
	}
	_, err = c.roundTrip(ctx, seq, constants.CmdHeartbeat, frame)
	return err
}

// maybeRefresh renews the bundle through wtlogin.exchange_emp once it is
// within TokenRefreshBefore of expiring. A failed refresh is retried after
// another refresh window has passed.
func (c *Client) maybeRefresh(ctx context.Context) {
	sig := c.sess.Sig()
	if !sig.HasToken() || sig.ExpiresAt.IsZero() {
		return
	}
	now := time.Now()
	c.mu.Lock()
	backoff := now.Before(c.refreshAfter)
	c.mu.Unlock()
	if backoff || sig.ExpiresAt.Sub(now) > c.cfg.TokenRefreshBefore {
		return
	}

	if err := c.refresh(ctx, sig); err != nil {
		slog.Warn("token refresh failed", "uin", c.sess.Uin(), "error", err)
		c.mu.Lock()
		c.refreshAfter = now.Add(c.cfg.TokenRefreshBefore / 4)
		c.mu.Unlock()
	}
}

func (c *Client) refresh(ctx context.Context, sig *login.Sig) error {
	codec, err := c.newCodec()
	if err != nil {
		return err
	}
	m, err := login.NewMachine(login.Config{
		Uin:     c.sess.Uin(),
		Device:  c.cfg.Device,
		App:     c.app,
		Sig:     sig,
		Codec:   codec,
		NextSeq: c.registry.Next,
	})
	if err != nil {
		return err
	}

	out, err := m.Step(login.StartToken{})
	for err == nil && out.Request != nil {
		var payload []byte
		if payload, err = c.exchange(ctx, out.Request); err != nil {
			return err
		}
		out, err = m.Step(login.Response{Payload: payload})
	}
	if err != nil {
		return err
	}
	if out.State != login.StageAuthenticated {
		if out.TokenRejected {
			c.deleteToken(ctx)
		}
		if out.Err != nil {
			return out.Err
		}
		return errors.New("refresh ended in " + out.State.String())
	}

	c.sess.setAuth(m.Uin(), out.Sig)
	if token, err := out.Sig.MarshalToken(); err == nil {
		if err := c.cfg.Tokens.Save(ctx, m.Uin(), token); err != nil {
			slog.Warn("saving refreshed token", "uin", m.Uin(), "error", err)
		}
	}
	slog.Info("token refreshed", "uin", m.Uin(), "expires_at", out.Sig.ExpiresAt)
	return nil
}
