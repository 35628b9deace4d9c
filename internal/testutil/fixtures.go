package testutil

import (
	"bytes"
	"testing"

	"github.com/udisondev/goicq/internal/constants"
	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/login"
)

// Fixtures содержит предварительно подготовленные тестовые данные
// для избежания дублирования в тестах.
var Fixtures = struct {
	Uin         int64
	Password    string
	PasswordMD5 []byte
	Nickname    string
}{
	Uin:         constants.TestUin,
	Password:    constants.TestPassword,
	PasswordMD5: crypto.MD5([]byte(constants.TestPassword)),
	Nickname:    "tester",
}

// Sig возвращает набор подписей с размерами полей, которые принимает
// MarshalToken.
func Sig() *login.Sig {
	return &login.Sig{
		D2Key:              bytes.Repeat([]byte{0x11}, 16),
		D2:                 bytes.Repeat([]byte{0x22}, 64),
		WtSessionTicketKey: bytes.Repeat([]byte{0x33}, 16),
		T133:               bytes.Repeat([]byte{0x44}, 48),
		SrmToken:           bytes.Repeat([]byte{0x55}, 56),
		TGT:                bytes.Repeat([]byte{0x66}, 72),
		DeviceToken:        []byte("device-token"),
		SKey:               []byte("@testskey"),
		Nickname:           Fixtures.Nickname,
	}
}

// NewDevice генерирует устройство с протоколом proto.
func NewDevice(tb testing.TB, proto device.Protocol) *device.Device {
	tb.Helper()

	d, err := device.Generate()
	if err != nil {
		tb.Fatalf("generating device: %v", err)
	}
	d.Protocol = proto
	return d
}
