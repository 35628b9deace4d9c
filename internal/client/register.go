package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/event"
	"github.com/udisondev/goicq/internal/jce"
	"github.com/udisondev/goicq/internal/protocol"
)

// Presence values of SvcReqRegister.
const (
	registerBidOnline   = 7
	registerBidLogout   = 0
	statusOnline        = 11
	statusLogout        = 21
	registerLocaleID    = 2052
	registerLargeSeq    = 1551
	registerNetTypeWifi = 1
)

// registerBody encodes StatSvc.register with the given bid and status.
func (c *Client) registerBody(bid, status int64) ([]byte, error) {
	dev := c.cfg.Device
	req, err := jce.EncodeStruct([]any{
		c.sess.Uin(),
		bid,
		int64(0), // conn type
		"",       // other
		status,
		false, // online push
		false, // online
		false, // kick pc
		false, // kick weak
		int64(0),
		int64(dev.Version.SDK),
		int64(registerNetTypeWifi),
		"",
		int64(0), // reg type
		nil,
		dev.Guid(),
		int64(registerLocaleID),
		int64(0), // silent push
		dev.Model,
		dev.Model,
		dev.Version.Release,
		true, // open push
		int64(registerLargeSeq),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding SvcReqRegister: %w", err)
	}
	return jce.EncodeWrapper(map[string][]byte{"SvcReqRegister": req}, "PushService", "SvcReqRegister", 0)
}

// register announces presence with the current bundle. Any failure
// deletes the stored token and drops the bundle.
func (c *Client) register(ctx context.Context) error {
	if err := c.registerOnce(ctx); err != nil {
		slog.Error("register failed", "uin", c.sess.Uin(), "error", err)
		c.deleteToken(ctx)
		c.sess.clearSig()
		c.sess.setStatus(StatusOffline)
		return fmt.Errorf("%w: %w", ErrRegister, err)
	}
	c.online()
	return nil
}

func (c *Client) registerOnce(ctx context.Context) error {
	body, err := c.registerBody(registerBidOnline, statusOnline)
	if err != nil {
		return err
	}
	seq := c.registry.Next()
	frame, err := c.loginFrame(seq, constants.CmdRegister, protocol.EncryptD2Key, body)
	if err != nil {
		return err
	}
	payload, err := c.roundTrip(ctx, seq, constants.CmdRegister, frame)
	if err != nil {
		return err
	}
	resp, err := jce.DecodeWrapper(payload)
	if err != nil {
		return err
	}
	if code, msg := resp.Int(2), resp.String(3); code != 0 || msg != "" {
		return fmt.Errorf("rejected: result %d %q", code, msg)
	}
	return nil
}

func (c *Client) online() {
	c.sess.setStatus(StatusOnline)
	slog.Info("online", "uin", c.sess.Uin())
	c.emit(event.Online{})
}

// logout tells the server the session ends. The response is not awaited.
func (c *Client) logout() error {
	body, err := c.registerBody(registerBidLogout, statusLogout)
	if err != nil {
		return err
	}
	frame, err := c.loginFrame(c.registry.Next(), constants.CmdRegister, protocol.EncryptD2Key, body)
	if err != nil {
		return err
	}
	return c.write(constants.CmdRegister, frame)
}

// onPushReq acknowledges a config push.
func (c *Client) onPushReq(f *protocol.Frame) {
	req, err := jce.DecodeWrapper(f.Payload)
	if err != nil {
		slog.Debug("unreadable config push", "seq", f.Seq, "error", err)
		return
	}
	typ, buf, seq := req.Int(1), req.Bytes(2), req.Int(3)
	slog.Debug("config push", "type", typ, "seq", seq, "size", len(buf))

	// the ack must not block the reader
	go func() {
		resp, err := jce.EncodeStruct([]any{nil, typ, seq, buf})
		if err != nil {
			slog.Warn("encoding PushResp", "error", err)
			return
		}
		body, err := jce.EncodeWrapper(map[string][]byte{"PushResp": resp}, "QQService.ConfigPushSvc.MainServant", "PushResp", 0)
		if err != nil {
			slog.Warn("encoding PushResp", "error", err)
			return
		}
		if err := c.Write(constants.CmdPushResp, body); err != nil {
			slog.Debug("config push ack not sent", "error", err)
		}
	}()
}

func (c *Client) onForceOffline(f *protocol.Frame) {
	req, err := jce.DecodeWrapper(f.Payload)
	msg := "forced offline"
	if err == nil && req.String(2) != "" {
		msg = req.String(2)
	}
	c.kickoff(msg)
}

func (c *Client) onMSFOffline(f *protocol.Frame) {
	req, err := jce.DecodeWrapper(f.Payload)
	msg := "logged in elsewhere"
	if err == nil && req.String(3) != "" {
		msg = req.String(3)
	}
	c.kickoff(msg)
}

// kickoff ends the session without reconnecting.
func (c *Client) kickoff(msg string) {
	c.mu.Lock()
	c.kicked = true
	conn := c.conn
	c.mu.Unlock()

	slog.Warn("kicked offline", "uin", c.sess.Uin(), "message", msg)
	c.sess.setStatus(StatusOffline)
	c.emit(event.Offline{Reason: event.OfflineKickoff, Message: msg})
	if conn != nil {
		_ = conn.Close()
	}
}
