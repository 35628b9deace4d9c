package testutil

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/jce"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/protocol"
	"github.com/udisondev/goicq/internal/tlv"
)

// LoginReply — ответ кластера на очередной wtlogin запрос вместо успеха.
type LoginReply struct {
	Status byte
	Fields tlv.Map
}

// Handler отвечает на uni-команду. ok=false означает «не отвечать».
type Handler func(body []byte) (resp []byte, ok bool)

// Cluster — фейковый login/sso кластер на 127.0.0.1 для integration тестов
// клиента. Понимает wtlogin.login, wtlogin.exchange_emp, StatSvc.register,
// Heartbeat.Alive и ConfigPushSvc.PushResp; остальные команды отдаются
// в Handle.
//
// Все соединения закрываются при завершении теста.
type Cluster struct {
	t         testing.TB
	ln        net.Listener
	srv       *OicqServer
	addr      string
	publicKey []byte
	dev       *device.Device

	mu             sync.Mutex
	conns          []*clusterConn
	sig            *login.Sig
	ttl            time.Duration
	script         []LoginReply
	rejectToken    bool
	rejectRegister bool
	muteHeartbeat  bool
	refuse         bool
	handlers       map[string]Handler
	seen           []string
	registers      int
	logouts        int
	acks           chan PushAck
	wg             sync.WaitGroup
}

// PushAck — полученный от клиента ConfigPushSvc.PushResp.
type PushAck struct {
	Type int64
	Seq  int64
	Buf  []byte
}

type clusterConn struct {
	net.Conn
	wmu sync.Mutex
}

func (c *clusterConn) send(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.Write(frame)
	return err
}

// NewCluster запускает кластер, выдающий dev подписи Sig().
func NewCluster(t testing.TB, dev *device.Device) *Cluster {
	t.Helper()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating cluster key: %v", err)
	}
	ln, addr := ListenTCP(t)

	c := &Cluster{
		t:         t,
		ln:        ln,
		srv:       NewOicqServer(priv),
		addr:      addr,
		publicKey: priv.PublicKey().Bytes(),
		dev:       dev,
		sig:       Sig(),
		ttl:       24 * time.Hour,
		handlers:  make(map[string]Handler),
		acks:      make(chan PushAck, 16),
	}

	c.wg.Add(1)
	go c.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		c.Drop()
		c.wg.Wait()
	})
	return c
}

// Addr возвращает адрес "host:port" для client.Config.Endpoints.
func (c *Cluster) Addr() string { return c.addr }

// PublicKey возвращает P-256 ключ кластера для client.Config.ServerKey.
func (c *Cluster) PublicKey() []byte { return c.publicKey }

// IssuedSig возвращает подписи, которые кластер выдаёт при успешном логине.
func (c *Cluster) IssuedSig() *login.Sig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sig.Clone()
}

// SetTTL задаёт срок жизни d2 в t138.
func (c *Cluster) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Script ставит ответы в очередь: каждый следующий wtlogin.login запрос
// получает очередной ответ, после опустошения очереди — успех.
func (c *Cluster) Script(replies ...LoginReply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, replies...)
}

// RejectToken заставляет exchange_emp отвечать статусом 15.
func (c *Cluster) RejectToken(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectToken = v
}

// RejectRegister заставляет StatSvc.register отвечать отказом.
func (c *Cluster) RejectRegister(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectRegister = v
}

// MuteHeartbeat перестаёт отвечать на Heartbeat.Alive.
func (c *Cluster) MuteHeartbeat(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muteHeartbeat = v
}

// Refuse закрывает новые соединения сразу после accept.
func (c *Cluster) Refuse(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refuse = v
}

// Handle регистрирует обработчик uni-команды.
func (c *Cluster) Handle(cmd string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[cmd] = h
}

// Count возвращает, сколько раз клиент прислал cmd.
func (c *Cluster) Count(cmd string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.seen {
		if s == cmd {
			n++
		}
	}
	return n
}

// Seen возвращает команды клиента в порядке получения.
func (c *Cluster) Seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.seen)
}

// Registers возвращает число успешно обработанных StatSvc.register.
func (c *Cluster) Registers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registers
}

// Logouts возвращает число StatSvc.register с признаком выхода.
func (c *Cluster) Logouts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts
}

// Acks возвращает канал подтверждений config push.
func (c *Cluster) Acks() <-chan PushAck { return c.acks }

// Conns возвращает число принятых соединений.
func (c *Cluster) Conns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Drop закрывает все открытые соединения, имитируя потерю сети.
func (c *Cluster) Drop() {
	c.mu.Lock()
	conns := slices.Clone(c.conns)
	c.mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

// Push отправляет клиенту push cmd по последнему соединению.
func (c *Cluster) Push(cmd string, payload []byte) error {
	c.mu.Lock()
	if len(c.conns) == 0 {
		c.mu.Unlock()
		return net.ErrClosed
	}
	conn := c.conns[len(c.conns)-1]
	d2key := c.sig.D2Key
	c.mu.Unlock()

	frame, err := BuildServerFrame(&protocol.Frame{
		Command:     cmd,
		Payload:     payload,
		EncryptType: protocol.EncryptD2Key,
	}, constants.TestUin, d2key, constants.CompressNone)
	if err != nil {
		return err
	}
	return conn.send(frame)
}

// PushConfig отправляет ConfigPushSvc.PushReq.
func (c *Cluster) PushConfig(typ, seq int64, buf []byte) error {
	req, err := jce.EncodeStruct([]any{nil, typ, buf, seq})
	if err != nil {
		return err
	}
	body, err := jce.EncodeWrapper(map[string][]byte{"PushReq": req}, "QQService.ConfigPushSvc.MainServant", "PushReq", 0)
	if err != nil {
		return err
	}
	return c.Push(constants.CmdPushReq, body)
}

// ForceOffline отправляет MessageSvc.PushForceOffline с текстом tips.
func (c *Cluster) ForceOffline(tips string) error {
	req, err := jce.EncodeStruct([]any{int64(constants.TestUin), "offline", tips})
	if err != nil {
		return err
	}
	body, err := jce.EncodeWrapper(map[string][]byte{"req_PushForceOffline": req}, "PushService", "PushForceOffline", 0)
	if err != nil {
		return err
	}
	return c.Push(constants.CmdForceOffline, body)
}

func (c *Cluster) serve() {
	defer c.wg.Done()
	for {
		nc, err := c.ln.Accept()
		if err != nil {
			return
		}
		conn := &clusterConn{Conn: nc}
		c.mu.Lock()
		refuse := c.refuse
		if !refuse {
			c.conns = append(c.conns, conn)
		}
		c.mu.Unlock()
		if refuse {
			_ = nc.Close()
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleConn(conn)
		}()
	}
}

func (c *Cluster) handleConn(conn *clusterConn) {
	defer conn.Close()

	stream := protocol.NewStream(constants.MaxFrameSize)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			stream.Feed(buf[:n])
			for {
				frame, ok, ferr := stream.Next()
				if ferr != nil {
					c.t.Logf("cluster: %v", ferr)
					return
				}
				if !ok {
					break
				}
				if err := c.handleFrame(conn, frame); err != nil {
					c.t.Logf("cluster: %v", err)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.t.Logf("cluster: reading: %v", err)
			}
			return
		}
	}
}

func (c *Cluster) handleFrame(conn *clusterConn, b []byte) error {
	c.mu.Lock()
	d2key := c.sig.D2Key
	c.mu.Unlock()

	f, err := ParseClientFrame(b, d2key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.seen = append(c.seen, f.Command)
	c.mu.Unlock()

	switch f.Command {
	case constants.CmdLogin, constants.CmdExchangeEmp:
		payload, err := c.wtlogin(f.Body)
		if err != nil {
			return err
		}
		return c.reply(conn, f, payload, protocol.EncryptZeroKey)
	case constants.CmdRegister:
		payload, ok, err := c.register(f.Body)
		if err != nil || !ok {
			return err
		}
		return c.reply(conn, f, payload, protocol.EncryptD2Key)
	case constants.CmdHeartbeat:
		c.mu.Lock()
		mute := c.muteHeartbeat
		c.mu.Unlock()
		if mute {
			return nil
		}
		return c.reply(conn, f, nil, protocol.EncryptNone)
	case constants.CmdPushResp:
		resp, err := jce.DecodeWrapper(f.Body)
		if err != nil {
			return err
		}
		c.acks <- PushAck{Type: resp.Int(1), Seq: resp.Int(2), Buf: resp.Bytes(3)}
		return nil
	default:
		c.mu.Lock()
		h := c.handlers[f.Command]
		c.mu.Unlock()
		if h == nil {
			return nil
		}
		payload, ok := h(f.Body)
		if !ok {
			return nil
		}
		return c.reply(conn, f, payload, protocol.EncryptD2Key)
	}
}

func (c *Cluster) reply(conn *clusterConn, f *ClientFrame, payload []byte, enc protocol.EncryptType) error {
	c.mu.Lock()
	d2key := c.sig.D2Key
	c.mu.Unlock()

	frame, err := BuildServerFrame(&protocol.Frame{
		Seq:         f.Seq,
		Command:     f.Command,
		Session:     f.Session,
		Payload:     payload,
		EncryptType: enc,
	}, f.Uin, d2key, constants.CompressNone)
	if err != nil {
		return err
	}
	return conn.send(frame)
}

// wtlogin answers a login or exchange request with the next scripted reply
// or a sealed success.
func (c *Cluster) wtlogin(body []byte) ([]byte, error) {
	req, err := c.srv.Unmarshal(body)
	if err != nil {
		return nil, err
	}
	sub, _, err := ReadLoginRequest(req.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	sig, ttl := c.sig, c.ttl
	key := []byte(c.dev.TgtgtKey)
	var scripted *LoginReply
	switch {
	case sub == tlv.SubCmdExchange && c.rejectToken:
		scripted = &LoginReply{Status: 15, Fields: tlv.Map{0x146: MessageField("token", "token expired")}}
	case sub == tlv.SubCmdExchange:
		key = sig.WtSessionTicketKey
	case len(c.script) > 0:
		scripted = &c.script[0]
		c.script = c.script[1:]
	}
	c.mu.Unlock()

	var resp []byte
	if scripted != nil {
		resp = LoginResponse(sub, scripted.Status, scripted.Fields)
	} else {
		t119, err := SealSig(sig, key, ttl)
		if err != nil {
			return nil, err
		}
		resp = LoginResponse(sub, 0, tlv.Map{0x119: t119})
	}
	return c.srv.Marshal(req.Command, req.Uin, req.ShareKey, resp)
}

// register answers StatSvc.register; logouts get no answer.
func (c *Cluster) register(body []byte) ([]byte, bool, error) {
	req, err := jce.DecodeWrapper(body)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	if req.Int(4) == 21 {
		c.logouts++
		c.mu.Unlock()
		return nil, false, nil
	}
	reject := c.rejectRegister
	if !reject {
		c.registers++
	}
	c.mu.Unlock()

	fields := []any{req.Int(0), req.Int(1), int64(0), ""}
	if reject {
		fields[2], fields[3] = int64(1), "register rejected"
	}
	resp, err := jce.EncodeStruct(fields)
	if err != nil {
		return nil, false, err
	}
	payload, err := jce.EncodeWrapper(map[string][]byte{"SvcRespRegister": resp}, "PushService", "SvcRespRegister", 0)
	return payload, true, err
}
