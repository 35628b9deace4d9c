package login

import (
	"errors"
	"fmt"
	"time"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/packet"
	"github.com/udisondev/goicq/internal/protocol"
	"github.com/udisondev/goicq/internal/tlv"
)

// Config is the fixed input of one login attempt.
type Config struct {
	Uin         int64
	PasswordMD5 []byte
	Device      *device.Device
	App         device.AppVersion

	// Sig is a resumable bundle from an earlier session, or nil.
	Sig *Sig
	// AllowQR lets a rejected token fall back to QR login when there is
	// no password.
	AllowQR bool

	// Codec seals the envelopes. Nil creates one against the production
	// server key.
	Codec *protocol.OicqCodec
	// NextSeq allocates the sequence id of each request.
	NextSeq func() int32
	Now     func() time.Time
}

// Context holds what the server handed out mid-handshake. It is cleared
// when the machine reaches a terminal stage.
type Context struct {
	T104        []byte
	T174        []byte
	T402        []byte
	T403        []byte
	CaptchaSign []byte
	Phone       string

	QRSig []byte
	T106  []byte
	T16A  []byte
	T318  []byte
	TGTGT []byte
}

// Input drives Step.
type Input interface {
	input()
}

type (
	// StartToken resumes with Config.Sig through wtlogin.exchange_emp.
	StartToken struct{}
	// StartPassword logs in with Config.PasswordMD5.
	StartPassword struct{}
	// StartQR fetches a QR image to scan.
	StartQR struct{}
	// PollQR asks for the scan state.
	PollQR struct{}
	// SubmitCaptcha answers NeedCaptcha.
	SubmitCaptcha struct{ Text string }
	// SubmitSlider answers NeedSlider with the ticket of the solved slider.
	SubmitSlider struct{ Ticket string }
	// RequestSMS asks for a verification text in NeedDeviceVerify.
	RequestSMS struct{}
	// SubmitSMS answers NeedSMSCode.
	SubmitSMS struct{ Code string }
	// RetryDevice repeats the login after the device was verified by url.
	RetryDevice struct{}
	// Response feeds back the payload of the frame that answered the last
	// Request.
	Response struct{ Payload []byte }
)

func (StartToken) input()    {}
func (StartPassword) input() {}
func (StartQR) input()       {}
func (PollQR) input()        {}
func (SubmitCaptcha) input() {}
func (SubmitSlider) input()  {}
func (RequestSMS) input()    {}
func (SubmitSMS) input()     {}
func (RetryDevice) input()   {}
func (Response) input()      {}

// RequestKind tells which wtlogin service a Request goes to.
type RequestKind int

const (
	KindLogin RequestKind = iota
	KindExchange
	KindTransEmp
)

func (k RequestKind) String() string {
	switch k {
	case KindLogin:
		return "login"
	case KindExchange:
		return "exchange"
	case KindTransEmp:
		return "trans_emp"
	default:
		return "unknown"
	}
}

// Request is a frame the caller must send, with Seq as its sequence id,
// as a login frame under the zero key.
type Request struct {
	Seq     int32
	Command string
	Body    []byte
	Kind    RequestKind
}

// Outcome is the result of one Step.
type Outcome struct {
	State   Stage
	Request *Request

	// Err is set for continuation and failed stages.
	Err *Error

	URL     string
	Phone   string
	Image   []byte
	QRState QRState

	// TokenRejected is set when the server refused Config.Sig; the stored
	// token should be deleted.
	TokenRejected bool

	// Sig is the new bundle once State is StageAuthenticated.
	Sig *Sig
}

// Machine is one login attempt. It is not safe for concurrent use.
type Machine struct {
	cfg   Config
	codec *protocol.OicqCodec

	stage   Stage
	pending step
	origin  step
	ctx     Context
	uin     int64
	seq     int32
	sig     *Sig

	captcha string
	ticket  string
	smsCode string
}

// NewMachine validates cfg and returns a machine in StageIdle.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Device == nil {
		return nil, errors.New("login: nil device")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	codec := cfg.Codec
	if codec == nil {
		e, err := crypto.NewECDH()
		if err != nil {
			return nil, err
		}
		if codec, err = protocol.NewOicqCodec(e); err != nil {
			return nil, err
		}
	}
	if cfg.Sig.HasToken() {
		codec.WtSessionTicketKey = cfg.Sig.WtSessionTicketKey
	}
	return &Machine{cfg: cfg, codec: codec, uin: cfg.Uin}, nil
}

// Stage returns the current stage.
func (m *Machine) Stage() Stage { return m.stage }

// Uin returns the account, which a confirmed QR scan may have set.
func (m *Machine) Uin() int64 { return m.uin }

// Context returns a copy of the handshake context.
func (m *Machine) Context() Context { return m.ctx }

// Sig returns the bundle of an authenticated machine.
func (m *Machine) Sig() *Sig { return m.sig }

// Step applies in and returns what to do next. A server refusal is
// reported in Outcome.Err; the error return is for inputs the stage does
// not accept and for responses that cannot be read, which also fail the
// attempt.
func (m *Machine) Step(in Input) (Outcome, error) {
	switch in := in.(type) {
	case StartToken:
		if m.stage != StageIdle {
			return m.illegal(in)
		}
		if !m.cfg.Sig.HasToken() {
			return Outcome{State: m.stage}, fmt.Errorf("%w: no token", ErrNoCredentials)
		}
		return m.send(stepToken)
	case StartPassword:
		if m.stage != StageIdle {
			return m.illegal(in)
		}
		if len(m.cfg.PasswordMD5) != 16 {
			return Outcome{State: m.stage}, fmt.Errorf("%w: no password", ErrNoCredentials)
		}
		return m.send(stepPassword)
	case StartQR:
		if m.stage != StageIdle {
			return m.illegal(in)
		}
		if !m.cfg.App.QRLogin {
			return Outcome{State: m.stage}, ErrQRUnsupported
		}
		return m.send(stepQRFetch)
	case PollQR:
		if m.stage != StageNeedQRScan {
			return m.illegal(in)
		}
		return m.send(stepQRPoll)
	case SubmitCaptcha:
		if m.stage != StageNeedCaptcha {
			return m.illegal(in)
		}
		m.captcha = in.Text
		return m.send(stepCaptcha)
	case SubmitSlider:
		if m.stage != StageNeedSlider {
			return m.illegal(in)
		}
		m.ticket = in.Ticket
		return m.send(stepSlider)
	case RequestSMS:
		if m.stage != StageNeedDeviceVerify || len(m.ctx.T174) == 0 {
			return m.illegal(in)
		}
		return m.send(stepSMSRequest)
	case SubmitSMS:
		if m.stage != StageNeedSMSCode {
			return m.illegal(in)
		}
		m.smsCode = in.Code
		return m.send(stepSMSSubmit)
	case RetryDevice:
		if m.stage != StageNeedDeviceVerify {
			return m.illegal(in)
		}
		return m.send(m.origin)
	case Response:
		if m.stage != StageAwaitingServer {
			return m.illegal(in)
		}
		return m.receive(in.Payload)
	default:
		return m.illegal(in)
	}
}

func (m *Machine) illegal(in Input) (Outcome, error) {
	return Outcome{State: m.stage}, fmt.Errorf("%w: %T in %s", ErrIllegalTransition, in, m.stage)
}

func (m *Machine) nextSeq() int32 {
	if m.cfg.NextSeq != nil {
		return m.cfg.NextSeq()
	}
	m.seq++
	return m.seq
}

func (m *Machine) env(seq int32) *tlv.Env {
	dev := m.cfg.Device
	if len(m.ctx.TGTGT) > 0 {
		d := *dev
		d.TgtgtKey = m.ctx.TGTGT
		dev = &d
	}
	e := &tlv.Env{
		Uin:           m.uin,
		PasswordMD5:   m.cfg.PasswordMD5,
		Device:        dev,
		App:           m.cfg.App,
		Seq:           seq,
		T104:          m.ctx.T104,
		T174:          m.ctx.T174,
		T402:          m.ctx.T402,
		T106:          m.ctx.T106,
		T16A:          m.ctx.T16A,
		T318:          m.ctx.T318,
		CaptchaResult: m.captcha,
		CaptchaSign:   m.ctx.CaptchaSign,
		SliderTicket:  m.ticket,
		SMSCode:       m.smsCode,
	}
	if m.cfg.Sig != nil {
		e.TGT = m.cfg.Sig.TGT
		e.D2 = m.cfg.Sig.D2
	}
	return e
}

func (m *Machine) send(st step) (Outcome, error) {
	req, err := m.build(st)
	if err != nil {
		m.stage = StageFailed
		m.ctx = Context{}
		return Outcome{State: m.stage}, fmt.Errorf("building %s request: %w", req.Kind, err)
	}
	m.pending = st
	if st == stepToken || st == stepPassword || st == stepQRLogin {
		m.origin = st
	}
	m.stage = StageAwaitingServer
	return Outcome{State: m.stage, Request: req}, nil
}

func (m *Machine) build(st step) (*Request, error) {
	req := &Request{Seq: m.nextSeq(), Command: constants.CmdLogin, Kind: KindLogin}
	e := m.env(req.Seq)
	oicqCmd := uint16(constants.OicqCmdLogin)

	var body []byte
	var err error
	switch st {
	case stepToken:
		req.Command, req.Kind = constants.CmdExchangeEmp, KindExchange
		body, err = tlv.Exchange(e)
	case stepPassword:
		body, err = tlv.PasswordLogin(e)
	case stepQRLogin:
		body, err = tlv.QRLogin(e)
	case stepCaptcha:
		body, err = tlv.Captcha(e)
	case stepSlider:
		body, err = tlv.Slider(e)
	case stepSMSRequest:
		body, err = tlv.SMSRequest(e)
	case stepSMSSubmit:
		body, err = tlv.SMSSubmit(e)
	case stepDeviceLock:
		body, err = tlv.DeviceLock(e)
	case stepQRFetch:
		req.Command, req.Kind = constants.CmdTransEmp, KindTransEmp
		oicqCmd = constants.OicqCmdTransEmp
		body, err = qrFetchBody(e, m.cfg.Now())
	case stepQRPoll:
		req.Command, req.Kind = constants.CmdTransEmp, KindTransEmp
		oicqCmd = constants.OicqCmdTransEmp
		body = qrQueryBody(m.ctx.QRSig, m.cfg.Now())
	default:
		err = fmt.Errorf("no request for step %d", st)
	}
	if err != nil {
		return req, err
	}

	req.Body, err = m.codec.Marshal(protocol.OicqMessage{
		Uin:     uint32(m.uin),
		Command: oicqCmd,
		Method:  protocol.EncryptECDH,
		Body:    body,
	})
	return req, err
}

func (m *Machine) receive(payload []byte) (Outcome, error) {
	msg, err := m.codec.Unmarshal(payload)
	if err != nil {
		return m.broken(fmt.Errorf("opening login response: %w", err))
	}
	if m.pending == stepQRFetch || m.pending == stepQRPoll {
		return m.receiveQR(msg.Body)
	}
	return m.receiveLogin(msg.Body)
}

func (m *Machine) broken(err error) (Outcome, error) {
	m.stage = StageFailed
	m.ctx = Context{}
	return Outcome{State: m.stage}, err
}

func (m *Machine) fail(code int, msg string) Outcome {
	m.stage = StageFailed
	m.ctx = Context{}
	return Outcome{State: m.stage, Err: &Error{Code: code, Message: msg, Stage: StageFailed}}
}

func (m *Machine) wait(stage Stage, code int) Outcome {
	m.stage = stage
	return Outcome{State: stage, Err: &Error{Code: code, Continuation: true, Stage: stage}}
}

func (m *Machine) receiveQR(body []byte) (Outcome, error) {
	res, err := decodeTransEmp(body)
	if err != nil {
		var le *Error
		if errors.As(err, &le) {
			return m.fail(le.Code, le.Message), nil
		}
		return m.broken(err)
	}
	if res.cmd == qrCmdFetch {
		m.ctx.QRSig = res.sig
		out := m.wait(StageNeedQRScan, int(QRWaiting))
		out.Image, out.QRState = res.image, QRWaiting
		return out, nil
	}

	switch res.state {
	case QRWaiting, QRScanned:
		out := m.wait(StageNeedQRScan, int(res.state))
		out.QRState = res.state
		return out, nil
	case QRConfirmed:
		m.uin = res.uin
		m.ctx.T106, m.ctx.T16A, m.ctx.T318, m.ctx.TGTGT = res.t106, res.t16a, res.t318, res.tgtgt
		out, err := m.send(stepQRLogin)
		out.QRState = QRConfirmed
		return out, err
	default:
		out := m.fail(int(res.state), "qr code "+res.state.String())
		out.QRState = res.state
		return out, nil
	}
}

// Login response statuses.
const (
	statusOK           = 0
	statusCaptcha      = 2
	statusTokenExpired = 15
	statusTokenInvalid = 16
	statusDeviceVerify = 160
	statusDeviceLock   = 204
)

func (m *Machine) receiveLogin(body []byte) (Outcome, error) {
	r := packet.NewReader(body)
	if err := r.Skip(2); err != nil {
		return m.broken(fmt.Errorf("reading login response: %w", err))
	}
	status, err := r.ReadByte()
	if err != nil {
		return m.broken(fmt.Errorf("reading login response: %w", err))
	}
	fields, _, err := tlv.ReadCounted(r.Rest())
	if err != nil {
		return m.broken(fmt.Errorf("reading login response: %w", err))
	}
	m.absorb(fields)

	switch status {
	case statusOK:
		return m.authenticate(fields)
	case statusCaptcha:
		if url, ok := fields[0x192]; ok {
			out := m.wait(StageNeedSlider, statusCaptcha)
			out.URL = string(url)
			return out, nil
		}
		if b, ok := fields[0x105]; ok {
			sign, img, err := decodeCaptcha(b)
			if err != nil {
				return m.broken(err)
			}
			m.ctx.CaptchaSign = sign
			out := m.wait(StageNeedCaptcha, statusCaptcha)
			out.Image = img
			return out, nil
		}
		return m.fail(statusCaptcha, serverMessage(fields)), nil
	case statusDeviceVerify:
		if m.pending == stepSMSRequest {
			out := m.wait(StageNeedSMSCode, statusDeviceVerify)
			out.Phone = m.ctx.Phone
			return out, nil
		}
		if b, ok := fields[0x178]; ok {
			m.ctx.Phone = decodePhone(b)
		}
		out := m.wait(StageNeedDeviceVerify, statusDeviceVerify)
		out.URL = string(fields[0x204])
		if len(m.ctx.T174) > 0 {
			out.Phone = m.ctx.Phone
		}
		return out, nil
	case statusDeviceLock:
		return m.send(stepDeviceLock)
	case statusTokenExpired, statusTokenInvalid:
		if m.pending == stepToken {
			return m.tokenRejected(int(status), fields)
		}
	}
	return m.fail(int(status), serverMessage(fields)), nil
}

func (m *Machine) absorb(fields tlv.Map) {
	for tag, dst := range map[uint16]*[]byte{
		0x104: &m.ctx.T104,
		0x174: &m.ctx.T174,
		0x402: &m.ctx.T402,
		0x403: &m.ctx.T403,
	} {
		if v, ok := fields[tag]; ok {
			*dst = v
		}
	}
}

func (m *Machine) tokenRejected(status int, fields tlv.Map) (Outcome, error) {
	m.cfg.Sig = nil
	m.codec.WtSessionTicketKey = nil

	var out Outcome
	var err error
	switch {
	case len(m.cfg.PasswordMD5) == 16:
		out, err = m.send(stepPassword)
	case m.cfg.AllowQR && m.cfg.App.QRLogin:
		out, err = m.send(stepQRFetch)
	default:
		out = m.fail(status, serverMessage(fields))
	}
	out.TokenRejected = true
	return out, err
}

func (m *Machine) authenticate(fields tlv.Map) (Outcome, error) {
	sealed, ok := fields[0x119]
	if !ok {
		return m.broken(fmt.Errorf("%w: login response without t119", packet.ErrDecode))
	}

	keys := [][]byte{m.cfg.Device.TgtgtKey}
	if len(m.ctx.TGTGT) > 0 {
		keys = [][]byte{m.ctx.TGTGT}
	}
	if m.cfg.Sig != nil && len(m.cfg.Sig.WtSessionTicketKey) > 0 {
		keys = append(keys, m.cfg.Sig.WtSessionTicketKey)
	}
	var plain, key []byte
	err := fmt.Errorf("%w: no key for t119", packet.ErrDecode)
	for _, k := range keys {
		if plain, err = crypto.TeaDecrypt(sealed, k); err == nil {
			key = k
			break
		}
	}
	if err != nil {
		return m.broken(fmt.Errorf("opening t119: %w", err))
	}

	inner, _, err := tlv.ReadCounted(plain)
	if err != nil {
		return m.broken(fmt.Errorf("reading t119: %w", err))
	}
	sig, err := decodeSig(inner, m.cfg.Now())
	if err != nil {
		return m.broken(err)
	}
	sig.TGTGT = key
	if m.cfg.Sig != nil {
		merged := m.cfg.Sig.Clone()
		merged.Merge(sig)
		sig = merged
	}

	m.sig = sig
	m.stage = StageAuthenticated
	m.ctx = Context{}
	return Outcome{State: m.stage, Sig: sig}, nil
}

// t105: u16 sign len | u16 image len | sign | image
func decodeCaptcha(b []byte) (sign, image []byte, err error) {
	r := packet.NewReader(b)
	signLen, err := r.ReadU16()
	if err != nil {
		return nil, nil, fmt.Errorf("reading t105: %w", err)
	}
	if err := r.Skip(2); err != nil {
		return nil, nil, fmt.Errorf("reading t105: %w", err)
	}
	if sign, err = r.ReadBytes(int(signLen)); err != nil {
		return nil, nil, fmt.Errorf("reading t105: %w", err)
	}
	return sign, r.Rest(), nil
}

// t178: lp16 country code | lp16 phone
func decodePhone(b []byte) string {
	r := packet.NewReader(b)
	if _, err := r.ReadTlv(); err != nil {
		return ""
	}
	phone, err := r.ReadTlv()
	if err != nil {
		return ""
	}
	return string(phone)
}

// serverMessage returns the content of t149 or the message of t146.
func serverMessage(fields tlv.Map) string {
	if b, ok := fields[0x149]; ok {
		r := packet.NewReader(b)
		if r.Skip(2) == nil {
			if _, err := r.ReadTlv(); err == nil {
				if msg, err := r.ReadTlv(); err == nil {
					return string(msg)
				}
			}
		}
	}
	if b, ok := fields[0x146]; ok {
		r := packet.NewReader(b)
		if r.Skip(4) == nil {
			if _, err := r.ReadTlv(); err == nil {
				if msg, err := r.ReadTlv(); err == nil {
					return string(msg)
				}
			}
		}
	}
	return "unknown error"
}
