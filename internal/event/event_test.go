package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbacks(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"system.login.slider", []string{"system.login.slider", "system.login", "system"}},
		{"system.online", []string{"system.online", "system"}},
		{"system", []string{"system"}},
		{".odd", []string{".odd"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fallbacks(tt.name), tt.name)
	}
}

func TestBus_MostSpecificWins(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe("system", func(Event) { got = append(got, "system") })
	b.Subscribe("system.login", func(Event) { got = append(got, "login") })

	assert.True(t, b.Emit(SliderRequired{URL: "https://x"}))
	assert.Equal(t, []string{"login"}, got)

	got = nil
	b.Subscribe("system.login.slider", func(e Event) {
		got = append(got, "slider:"+e.(SliderRequired).URL)
	})
	b.Emit(SliderRequired{URL: "https://x"})
	assert.Equal(t, []string{"slider:https://x"}, got)

	got = nil
	b.Emit(Online{})
	assert.Equal(t, []string{"system"}, got)
}

func TestBus_NoSubscribers(t *testing.T) {
	assert.False(t, NewBus().Emit(Offline{Reason: OfflineKickoff}))
}

func TestEventNames(t *testing.T) {
	assert.Equal(t, "system.offline.kickoff", Offline{Reason: OfflineKickoff}.Name())
	assert.Equal(t, "system.login.device", DeviceVerify{}.Name())
	assert.Equal(t, "system.login.qrcode", QRCode{}.Name())
	assert.Equal(t, "system.login.captcha", CaptchaRequired{}.Name())
	assert.Equal(t, "system.login.error", LoginError{}.Name())
	assert.Equal(t, "system.reconnect", Reconnecting{}.Name())
}

func TestBus_QRStateFallsBackToQRCode(t *testing.T) {
	b := NewBus()
	var got []Event
	b.Subscribe("system.login.qrcode", func(e Event) { got = append(got, e) })

	b.Emit(QRCode{Image: []byte("png")})
	b.Emit(QRScanState{State: "SCANNED"})
	b.Emit(SMSSent{Phone: "138"})

	assert.Equal(t, []Event{QRCode{Image: []byte("png")}, QRScanState{State: "SCANNED"}}, got)
}
