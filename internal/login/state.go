package login

// Stage is the state of a login attempt.
type Stage int

const (
	StageIdle             Stage = iota // nothing sent yet
	StageAwaitingServer                // a request is in flight
	StageAuthenticated                 // sig bundle received
	StageNeedCaptcha                   // image captcha shown, SubmitCaptcha
	StageNeedSlider                    // slider url shown, SubmitSlider
	StageNeedDeviceVerify              // url/phone shown, RetryDevice or RequestSMS
	StageNeedSMSCode                   // code texted, SubmitSMS
	StageNeedQRScan                    // QR image shown, PollQR
	StageFailed                        // terminal
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "IDLE"
	case StageAwaitingServer:
		return "AWAITING_SERVER"
	case StageAuthenticated:
		return "AUTHENTICATED"
	case StageNeedCaptcha:
		return "NEED_CAPTCHA"
	case StageNeedSlider:
		return "NEED_SLIDER"
	case StageNeedDeviceVerify:
		return "NEED_DEVICE_VERIFY"
	case StageNeedSMSCode:
		return "NEED_SMS_CODE"
	case StageNeedQRScan:
		return "NEED_QR_SCAN"
	case StageFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Continuation reports whether the stage waits for user input.
func (s Stage) Continuation() bool {
	switch s {
	case StageNeedCaptcha, StageNeedSlider, StageNeedDeviceVerify, StageNeedSMSCode, StageNeedQRScan:
		return true
	}
	return false
}

// QRState is the scan state reported by a trans_emp poll.
type QRState byte

const (
	QRConfirmed QRState = 0x00
	QRExpired   QRState = 0x11
	QRWaiting   QRState = 0x30
	QRScanned   QRState = 0x35
	QRCanceled  QRState = 0x36
)

func (s QRState) String() string {
	switch s {
	case QRConfirmed:
		return "CONFIRMED"
	case QRExpired:
		return "EXPIRED"
	case QRWaiting:
		return "WAITING"
	case QRScanned:
		return "SCANNED"
	case QRCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// step is what the in-flight request was, which decides how its response
// is read.
type step int

const (
	stepNone step = iota
	stepToken
	stepPassword
	stepCaptcha
	stepSlider
	stepSMSRequest
	stepSMSSubmit
	stepDeviceLock
	stepQRFetch
	stepQRPoll
	stepQRLogin
)
