package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/goicq/internal/event"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/protocol"
)

// Login runs the handshake on the current connection: the stored token
// first, then the password, then a QR code when allowed. On success the
// client registers and goes online.
//
// A returned *login.Error with Continuation set means the server wants a
// captcha, slider, SMS code, device verification or QR scan; the matching
// event has been emitted and one of the Submit methods continues.
func (c *Client) Login(ctx context.Context) error {
	sig := c.sess.Sig()
	if !sig.HasToken() {
		sig = c.loadToken(ctx)
	}
	codec, err := c.newCodec()
	if err != nil {
		return err
	}
	m, err := login.NewMachine(login.Config{
		Uin:         c.sess.Uin(),
		PasswordMD5: c.cfg.PasswordMD5,
		Device:      c.cfg.Device,
		App:         c.app,
		Sig:         sig,
		AllowQR:     c.cfg.AllowQR,
		Codec:       codec,
		NextSeq:     c.registry.Next,
	})
	if err != nil {
		return err
	}

	var start login.Input
	switch {
	case sig.HasToken():
		start = login.StartToken{}
	case len(c.cfg.PasswordMD5) == 16:
		start = login.StartPassword{}
	case c.cfg.AllowQR && c.app.QRLogin:
		start = login.StartQR{}
	default:
		c.sess.setStatus(StatusOffline)
		return login.ErrNoCredentials
	}
	c.sess.setStatus(StatusConnecting)
	return c.drive(ctx, m, start)
}

// SubmitCaptcha answers a CaptchaRequired event.
func (c *Client) SubmitCaptcha(ctx context.Context, text string) error {
	return c.resume(ctx, login.SubmitCaptcha{Text: text})
}

// SubmitSlider answers a SliderRequired event with the solved ticket.
func (c *Client) SubmitSlider(ctx context.Context, ticket string) error {
	return c.resume(ctx, login.SubmitSlider{Ticket: ticket})
}

// RequestSMS asks for a verification code after a DeviceVerify event with
// a phone number.
func (c *Client) RequestSMS(ctx context.Context) error {
	return c.resume(ctx, login.RequestSMS{})
}

// SubmitSMS answers an SMSSent event.
func (c *Client) SubmitSMS(ctx context.Context, code string) error {
	return c.resume(ctx, login.SubmitSMS{Code: code})
}

// RetryDevice repeats the login once the device was verified by url.
func (c *Client) RetryDevice(ctx context.Context) error {
	return c.resume(ctx, login.RetryDevice{})
}

// PollQR asks whether the QR code was scanned and confirmed.
func (c *Client) PollQR(ctx context.Context) error {
	return c.resume(ctx, login.PollQR{})
}

// LoginStage returns the stage of a paused login, or StageIdle.
func (c *Client) LoginStage() login.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.machine == nil {
		return login.StageIdle
	}
	return c.machine.Stage()
}

func (c *Client) resume(ctx context.Context, in login.Input) error {
	c.mu.Lock()
	m := c.machine
	c.machine = nil
	c.mu.Unlock()
	if m == nil {
		return fmt.Errorf("%w: no login in progress", login.ErrIllegalTransition)
	}

	err := c.drive(ctx, m, in)
	if errors.Is(err, login.ErrIllegalTransition) {
		c.mu.Lock()
		if c.machine == nil {
			c.machine = m
		}
		c.mu.Unlock()
	}
	return err
}

// drive feeds in to m and then runs request/response rounds until m
// authenticates, pauses or fails.
func (c *Client) drive(ctx context.Context, m *login.Machine, in login.Input) error {
	out, err := m.Step(in)
	if errors.Is(err, login.ErrIllegalTransition) {
		return err
	}
	for err == nil && out.Request != nil {
		if out.TokenRejected {
			c.deleteToken(ctx)
			c.sess.clearSig()
		}
		var payload []byte
		if payload, err = c.exchange(ctx, out.Request); err != nil {
			break
		}
		out, err = m.Step(login.Response{Payload: payload})
	}
	if out.TokenRejected {
		c.deleteToken(ctx)
		c.sess.clearSig()
	}
	if err != nil {
		c.cfg.Metrics.LoginOutcomes.WithLabelValues(login.StageFailed.String()).Inc()
		c.sess.setStatus(StatusOffline)
		slog.Error("login failed", "uin", m.Uin(), "stage", m.Stage(), "error", err)
		return fmt.Errorf("login: %w", err)
	}
	c.cfg.Metrics.LoginOutcomes.WithLabelValues(out.State.String()).Inc()

	switch {
	case out.State == login.StageAuthenticated:
		slog.Info("logged in", "uin", m.Uin(), "nickname", out.Sig.Nickname)
		return c.authenticated(ctx, m.Uin(), out.Sig)
	case out.State.Continuation():
		c.mu.Lock()
		c.machine = m
		c.mu.Unlock()
		slog.Info("login paused", "uin", m.Uin(), "stage", out.State)
		c.emit(continuationEvent(out))
		return out.Err
	default:
		c.sess.setStatus(StatusOffline)
		if out.Err == nil {
			return fmt.Errorf("login ended in %s", out.State)
		}
		slog.Error("login rejected", "uin", m.Uin(), "code", out.Err.Code, "message", out.Err.Message)
		c.emit(event.LoginError{Code: out.Err.Code, Message: out.Err.Message})
		return out.Err
	}
}

// exchange sends one handshake request and returns the response payload.
func (c *Client) exchange(ctx context.Context, req *login.Request) ([]byte, error) {
	frame, err := c.loginFrame(req.Seq, req.Command, protocol.EncryptZeroKey, req.Body)
	if err != nil {
		return nil, err
	}
	slog.Debug("sending login request", "kind", req.Kind, "seq", req.Seq)
	return c.roundTrip(ctx, req.Seq, req.Command, frame)
}

func continuationEvent(out login.Outcome) event.Event {
	switch out.State {
	case login.StageNeedSlider:
		return event.SliderRequired{URL: out.URL}
	case login.StageNeedCaptcha:
		return event.CaptchaRequired{Image: out.Image}
	case login.StageNeedDeviceVerify:
		return event.DeviceVerify{URL: out.URL, Phone: out.Phone}
	case login.StageNeedSMSCode:
		return event.SMSSent{Phone: out.Phone}
	default:
		if len(out.Image) > 0 {
			return event.QRCode{Image: out.Image}
		}
		return event.QRScanState{State: out.QRState.String()}
	}
}

func (c *Client) authenticated(ctx context.Context, uin int64, sig *login.Sig) error {
	c.sess.setAuth(uin, sig)
	if sig.HasToken() {
		if token, err := sig.MarshalToken(); err != nil {
			slog.Warn("token not persisted", "uin", uin, "error", err)
		} else if err := c.cfg.Tokens.Save(ctx, uin, token); err != nil {
			slog.Warn("saving token", "uin", uin, "error", err)
		}
	}
	return c.register(ctx)
}

func (c *Client) loadToken(ctx context.Context) *login.Sig {
	uin := c.sess.Uin()
	b, err := c.cfg.Tokens.Load(ctx, uin)
	if err != nil {
		if !errors.Is(err, login.ErrNoToken) {
			slog.Warn("loading token", "uin", uin, "error", err)
		}
		return nil
	}
	sig, err := login.UnmarshalToken(b)
	if err != nil {
		slog.Warn("discarding unreadable token", "uin", uin, "error", err)
		c.deleteToken(ctx)
		return nil
	}
	return sig
}

func (c *Client) deleteToken(ctx context.Context) {
	uin := c.sess.Uin()
	if err := c.cfg.Tokens.Delete(ctx, uin); err != nil {
		slog.Warn("deleting token", "uin", uin, "error", err)
	}
}
