package tlv

// Sub commands of wtlogin.login / wtlogin.exchange_emp bodies.
const (
	SubCmdPassword   = 9
	SubCmdExchange   = 11
	SubCmdCaptcha    = 2
	SubCmdSMSRequest = 8
	SubCmdSMSSubmit  = 7
	SubCmdDeviceLock = 20
)

var (
	passwordSet = []uint16{
		0x018, 0x001, 0x106, 0x116, 0x100, 0x107, 0x142, 0x144, 0x145, 0x147,
		0x154, 0x141, 0x008, 0x511, 0x187, 0x188, 0x194, 0x191, 0x202, 0x177,
		0x516, 0x521, 0x525,
	}
	qrSet = []uint16{
		0x018, 0x001, 0x106, 0x116, 0x100, 0x107, 0x142, 0x144, 0x145, 0x147,
		0x16A, 0x154, 0x141, 0x008, 0x511, 0x187, 0x188, 0x194, 0x191, 0x202,
		0x177, 0x516, 0x521, 0x318,
	}
	exchangeSet = []uint16{
		0x100, 0x10A, 0x116, 0x144, 0x143, 0x142, 0x154, 0x018, 0x141, 0x008,
		0x147, 0x177, 0x187, 0x188, 0x202, 0x511,
	}
	captchaSet    = []uint16{0x002, 0x008, 0x104, 0x116}
	sliderSet     = []uint16{0x193, 0x008, 0x104, 0x116}
	smsRequestSet = []uint16{0x008, 0x104, 0x116, 0x174, 0x17A, 0x197}
	smsSubmitSet  = []uint16{0x008, 0x104, 0x116, 0x174, 0x17C, 0x401, 0x198}
	deviceLockSet = []uint16{0x008, 0x104, 0x116, 0x401}
)

// PasswordLogin builds the sub command 9 body for a password login.
func PasswordLogin(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdPassword, passwordSet...)
}

// QRLogin builds the sub command 9 body that finishes a QR login with the
// t106/t16a/t318 blobs returned by the confirmed scan.
func QRLogin(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdPassword, qrSet...)
}

// Exchange builds the wtlogin.exchange_emp body that resumes or refreshes
// a session from a saved token.
func Exchange(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdExchange, exchangeSet...)
}

// Captcha submits the text of an image captcha.
func Captcha(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdCaptcha, captchaSet...)
}

// Slider submits the ticket of a solved slider.
func Slider(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdCaptcha, sliderSet...)
}

// SMSRequest asks the server to text a verification code.
func SMSRequest(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdSMSRequest, smsRequestSet...)
}

// SMSSubmit sends the received verification code.
func SMSSubmit(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdSMSSubmit, smsSubmitSet...)
}

// DeviceLock answers a 204 response.
func DeviceLock(e *Env) ([]byte, error) {
	return PackCounted(e, SubCmdDeviceLock, deviceLockSet...)
}
