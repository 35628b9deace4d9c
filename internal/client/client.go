// Package client runs one account's session: connection, login, register,
// heartbeat and reconnect, and the Send/OnCommand surface on top of it.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/event"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/metrics"
	"github.com/udisondev/goicq/internal/network"
	"github.com/udisondev/goicq/internal/protocol"
)

var (
	// ErrOffline is returned by Send and Write while the client is not online.
	ErrOffline = errors.New("client is offline")

	// ErrRegister is returned when StatSvc.register is rejected or fails.
	// The stored token has been deleted.
	ErrRegister = errors.New("register failed")
)

// Config configures a Client. Zero durations take the package defaults.
type Config struct {
	Uin         int64
	PasswordMD5 []byte
	Device      *device.Device
	AllowQR     bool

	// Endpoints are tried in order. Empty resolves constants.DefaultHost.
	Endpoints    []string
	DialTimeout  time.Duration
	MaxFrameSize int

	RequestTimeout     time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatGrace     time.Duration
	ReconnectDelay     time.Duration
	MaxReconnects      int // 0: unlimited
	TokenRefreshBefore time.Duration

	// Tokens persists the resumable sig bundle. Nil keeps nothing.
	Tokens  login.TokenStore
	Metrics *metrics.Metrics
	Events  *event.Bus

	// ServerKey overrides the cluster's ECDH public key.
	ServerKey        []byte
	ServerKeyVersion uint16
}

func (c *Config) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = constants.MaxFrameSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = constants.DefaultRequestTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = constants.DefaultHeartbeatInterval
	}
	if c.HeartbeatGrace <= 0 {
		c.HeartbeatGrace = constants.DefaultHeartbeatGrace
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = constants.DefaultReconnectDelay
	}
	if c.TokenRefreshBefore <= 0 {
		c.TokenRefreshBefore = constants.DefaultTokenRefreshBefore
	}
	if c.Tokens == nil {
		c.Tokens = noTokens{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Discard()
	}
	if c.Events == nil {
		c.Events = event.NewBus()
	}
}

// Client is one logged-in account. Create with New, start with Connect,
// stop with Close.
type Client struct {
	cfg      Config
	app      device.AppVersion
	sess     *Session
	registry *network.Registry
	dispatch *network.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	conn         *network.Conn
	machine      *login.Machine
	kicked       bool
	closed       bool
	losses       int
	refreshAfter time.Time
}

// New creates an offline client.
func New(cfg Config) (*Client, error) {
	if cfg.Device == nil {
		return nil, errors.New("client: nil device")
	}
	cfg.setDefaults()
	app, err := cfg.Device.Protocol.App()
	if err != nil {
		return nil, err
	}
	sess, err := newSession(cfg.Uin)
	if err != nil {
		return nil, err
	}

	registry := network.NewRegistry(rand.Int32N(constants.SeqWrap))
	c := &Client{
		cfg:      cfg,
		app:      app,
		sess:     sess,
		registry: registry,
		dispatch: network.NewDispatcher(registry),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.dispatch.OnDrop = func(*protocol.Frame) { c.cfg.Metrics.FramesDropped.Inc() }
	c.dispatch.OnCommand(constants.CmdPushReq, c.onPushReq)
	c.dispatch.OnCommand(constants.CmdForceOffline, c.onForceOffline)
	c.dispatch.OnCommand(constants.CmdMSFOffline, c.onMSFOffline)
	return c, nil
}

// Session returns the session state.
func (c *Client) Session() *Session { return c.sess }

// Status returns the connection state.
func (c *Client) Status() Status { return c.sess.Status() }

// Events returns the bus continuation and lifecycle events are emitted on.
func (c *Client) Events() *event.Bus { return c.cfg.Events }

// Losses returns how many times an online connection was lost.
func (c *Client) Losses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.losses
}

// Connect dials the cluster and logs in. A *login.Error with
// Continuation set means the login waits for one of the Submit methods.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return network.ErrConnClosed
	}
	c.kicked = false
	c.mu.Unlock()

	c.sess.setStatus(StatusConnecting)
	if err := c.dial(ctx); err != nil {
		c.sess.setStatus(StatusOffline)
		return err
	}
	return c.Login(ctx)
}

// OnCommand registers h for pushes of cmd.
func (c *Client) OnCommand(cmd string, h network.Handler) {
	c.dispatch.OnCommand(cmd, h)
}

// Send sends body as cmd and waits for the response payload.
func (c *Client) Send(ctx context.Context, cmd string, body []byte) ([]byte, error) {
	p, err := c.SendAsync(cmd, body, c.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return c.wait(ctx, p)
}

// SendAsync sends body as cmd and returns the pending response. A
// non-positive timeout takes Config.RequestTimeout.
func (c *Client) SendAsync(cmd string, body []byte, timeout time.Duration) (*network.Pending, error) {
	if c.sess.Status() != StatusOnline {
		return nil, ErrOffline
	}
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	seq := c.registry.Next()
	frame, err := c.uniFrame(seq, cmd, body)
	if err != nil {
		return nil, err
	}
	return c.dispatchRequest(seq, cmd, frame, timeout), nil
}

// Write sends body as cmd without waiting for a response.
func (c *Client) Write(cmd string, body []byte) error {
	if c.sess.Status() != StatusOnline {
		return ErrOffline
	}
	frame, err := c.uniFrame(c.registry.Next(), cmd, body)
	if err != nil {
		return err
	}
	return c.write(cmd, frame)
}

// Close logs out when online, stops all goroutines and fails pending
// requests with network.ErrConnClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if c.sess.Status() == StatusOnline {
		if err := c.logout(); err != nil {
			slog.Warn("logout failed", "uin", c.sess.Uin(), "error", err)
		}
	}

	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	c.registry.CancelAll(network.ErrConnClosed)
	c.wg.Wait()
	c.sess.setStatus(StatusOffline)
	c.cfg.Metrics.PendingRequests.Set(0)
	slog.Info("client closed", "uin", c.sess.Uin())
	return nil
}

func (c *Client) uniFrame(seq int32, cmd string, body []byte) ([]byte, error) {
	return protocol.BuildUniFrame(protocol.UniHeader{
		Seq:     seq,
		Uin:     c.sess.Uin(),
		Command: cmd,
		Session: c.sess.Nonce(),
		D2Key:   c.sess.D2Key(),
	}, body)
}

// loginFrame builds a full-head frame. d2 and the d2key are attached for
// protocol.EncryptD2Key.
func (c *Client) loginFrame(seq int32, cmd string, enc protocol.EncryptType, body []byte) ([]byte, error) {
	h := protocol.LoginHeader{
		Seq:         seq,
		AppID:       c.app.AppID,
		SubAppID:    c.app.SubAppID,
		Uin:         c.sess.Uin(),
		Command:     cmd,
		EncryptType: enc,
		Session:     c.sess.Nonce(),
		IMEI:        c.cfg.Device.IMEI,
	}
	if sig := c.sess.Sig(); sig != nil {
		h.KSID = sig.KSID
		h.TGT = sig.TGT
		if enc == protocol.EncryptD2Key {
			h.D2 = sig.D2
			h.D2Key = sig.D2Key
		}
	}
	return protocol.BuildLoginFrame(h, body)
}

// dispatchRequest registers seq and writes frame. A failed write completes
// the pending request with the write error.
func (c *Client) dispatchRequest(seq int32, cmd string, frame []byte, timeout time.Duration) *network.Pending {
	p := c.registry.Register(seq, timeout)
	c.cfg.Metrics.PendingRequests.Set(float64(c.registry.Len()))
	if err := c.write(cmd, frame); err != nil {
		c.registry.Fail(seq, err)
	}
	return p
}

func (c *Client) wait(ctx context.Context, p *network.Pending) ([]byte, error) {
	payload, err := p.Wait(ctx)
	c.cfg.Metrics.PendingRequests.Set(float64(c.registry.Len()))
	if errors.Is(err, network.ErrTimeout) {
		c.cfg.Metrics.RequestTimeouts.Inc()
	}
	return payload, err
}

func (c *Client) roundTrip(ctx context.Context, seq int32, cmd string, frame []byte) ([]byte, error) {
	return c.wait(ctx, c.dispatchRequest(seq, cmd, frame, c.cfg.RequestTimeout))
}

func (c *Client) write(cmd string, frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return network.ErrConnClosed
	}
	if err := conn.Write(frame); err != nil {
		return err
	}
	c.cfg.Metrics.FramesOut.WithLabelValues(cmd).Inc()
	return nil
}

func (c *Client) endpoints(ctx context.Context) ([]string, error) {
	if len(c.cfg.Endpoints) > 0 {
		return c.cfg.Endpoints, nil
	}
	hosts, err := net.DefaultResolver.LookupHost(ctx, constants.DefaultHost)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", network.ErrTransport, constants.DefaultHost, err)
	}
	addrs := make([]string, 0, len(hosts))
	for _, h := range hosts {
		addrs = append(addrs, net.JoinHostPort(h, strconv.Itoa(constants.DefaultPort)))
	}
	return addrs, nil
}

func (c *Client) newCodec() (*protocol.OicqCodec, error) {
	var e *crypto.ECDH
	var err error
	if len(c.cfg.ServerKey) > 0 {
		e, err = crypto.NewECDHWithServerKey(c.cfg.ServerKey, c.cfg.ServerKeyVersion)
	} else {
		e, err = crypto.NewECDH()
	}
	if err != nil {
		return nil, err
	}
	return protocol.NewOicqCodec(e)
}

func (c *Client) emit(e event.Event) {
	if !c.cfg.Events.Emit(e) {
		slog.Debug("event without subscribers", "event", e.Name())
	}
}

// noTokens is the TokenStore of a client configured without one.
type noTokens struct{}

func (noTokens) Load(context.Context, int64) ([]byte, error) { return nil, login.ErrNoToken }
func (noTokens) Save(context.Context, int64, []byte) error   { return nil }
func (noTokens) Delete(context.Context, int64) error         { return nil }
