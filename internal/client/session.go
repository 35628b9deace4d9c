package client

import (
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/login"
)

// Status is the connection state of a client.
type Status int32

const (
	StatusOffline    Status = iota // no connection or terminal failure
	StatusConnecting               // dialing, logging in or reconnecting
	StatusOnline                   // registered, heartbeat running
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "OFFLINE"
	case StatusConnecting:
		return "CONNECTING"
	case StatusOnline:
		return "ONLINE"
	default:
		return "UNKNOWN"
	}
}

// Session is the identity and credentials of a client. The sig bundle is
// written only under mu; readers get a copy.
type Session struct {
	mu    sync.Mutex
	uin   int64
	sig   *login.Sig
	nonce []byte

	status atomic.Int32
}

func newSession(uin int64) (*Session, error) {
	nonce := make([]byte, constants.SessionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating session nonce: %w", err)
	}
	return &Session{uin: uin, nonce: nonce}, nil
}

// Uin returns the account.
func (s *Session) Uin() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uin
}

// Nonce returns the 4-byte session id sent in every login frame.
func (s *Session) Nonce() []byte {
	return s.nonce
}

// Sig returns a copy of the bundle, or nil before the first login.
func (s *Session) Sig() *login.Sig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sig == nil {
		return nil
	}
	return s.sig.Clone()
}

// D2Key returns the key of steady-state frames.
func (s *Session) D2Key() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sig == nil {
		return nil
	}
	return s.sig.D2Key
}

// Status returns the connection state.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

func (s *Session) setStatus(st Status) Status {
	return Status(s.status.Swap(int32(st)))
}

func (s *Session) setAuth(uin int64, sig *login.Sig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uin = uin
	s.sig = sig
}

func (s *Session) clearSig() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sig = nil
}
