// Package event defines the typed session events and the subscription bus
// that delivers them.
package event

import (
	"strings"
	"sync"
)

// Event is one of the types below. Name places it in the dotted hierarchy
// used for subscription fallback.
type Event interface {
	Name() string
}

// OfflineReason says why the session went offline.
type OfflineReason string

const (
	// OfflineNetwork is a lost connection after reconnect gave up.
	OfflineNetwork OfflineReason = "network"
	// OfflineKickoff is a forced offline push; the client does not reconnect.
	OfflineKickoff OfflineReason = "kickoff"
)

// Online is emitted once register succeeded.
type Online struct{}

func (Online) Name() string { return "system.online" }

// Offline is emitted when the session ends without a local Close.
type Offline struct {
	Reason  OfflineReason
	Message string
}

func (e Offline) Name() string { return "system.offline." + string(e.Reason) }

// SliderRequired carries the url of a slider captcha. Answer with SubmitSlider.
type SliderRequired struct {
	URL string
}

func (SliderRequired) Name() string { return "system.login.slider" }

// CaptchaRequired carries an image captcha. Answer with SubmitCaptcha.
type CaptchaRequired struct {
	Image []byte
}

func (CaptchaRequired) Name() string { return "system.login.captcha" }

// DeviceVerify asks for verification of a new device, either by opening URL
// or by SMS to Phone when Phone is set.
type DeviceVerify struct {
	URL   string
	Phone string
}

func (DeviceVerify) Name() string { return "system.login.device" }

// SMSSent reports that a verification code was texted to Phone. Answer
// with SubmitSMS.
type SMSSent struct {
	Phone string
}

func (SMSSent) Name() string { return "system.login.sms" }

// QRCode carries a QR image to scan with an already logged in device.
type QRCode struct {
	Image []byte
}

func (QRCode) Name() string { return "system.login.qrcode" }

// QRScanState reports a QR poll result while the scan is pending.
type QRScanState struct {
	State string
}

func (QRScanState) Name() string { return "system.login.qrcode.state" }

// LoginError is a terminal login failure.
type LoginError struct {
	Code    int
	Message string
}

func (LoginError) Name() string { return "system.login.error" }

// Reconnecting is emitted before each reconnect attempt.
type Reconnecting struct {
	Attempt int
}

func (Reconnecting) Name() string { return "system.reconnect" }

// Fallbacks returns name followed by each of its dotted prefixes, longest
// first: "system.login.slider" → [system.login.slider system.login system].
func Fallbacks(name string) []string {
	out := []string{name}
	for {
		i := strings.LastIndexByte(name, '.')
		if i <= 0 {
			return out
		}
		name = name[:i]
		out = append(out, name)
	}
}

// Handler receives events.
type Handler func(Event)

// Bus delivers each event to the subscribers of the most specific name in
// its fallback chain that has any.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

// Subscribe registers h for name, which may be a full event name or any
// dotted prefix of one.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = append(b.subs[name], h)
}

// Emit delivers e synchronously. It reports whether anyone received it.
func (b *Bus) Emit(e Event) bool {
	b.mu.RLock()
	var hs []Handler
	for _, name := range Fallbacks(e.Name()) {
		if hs = b.subs[name]; len(hs) > 0 {
			break
		}
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
	return len(hs) > 0
}
