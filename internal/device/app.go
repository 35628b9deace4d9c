package device

import (
	"fmt"
)

// Protocol selects which official client build is impersonated.
type Protocol string

const (
	AndroidPhone Protocol = "android_phone"
	AndroidPad   Protocol = "android_pad"
	AndroidWatch Protocol = "android_watch"
)

// AppVersion is the client build information carried in TLVs and frame heads.
type AppVersion struct {
	ApkID           string
	AppID           uint32
	SubAppID        uint32
	SortVersionName string
	BuildTime       uint32
	ApkSign         []byte
	SDKVersion      string
	SSOVersion      uint32
	MiscBitmap      uint32
	SubSigMap       uint32
	MainSigMap      uint32
	// QRLogin is true for builds the server accepts trans_emp from.
	QRLogin bool
}

var apkSign = []byte{0xA6, 0xB7, 0x45, 0xBF, 0x24, 0xA2, 0xC2, 0x77, 0x52, 0x77, 0x16, 0xF6, 0xF3, 0x6E, 0xB6, 0x8D}

var apps = map[Protocol]AppVersion{
	AndroidPhone: {
		ApkID:           "com.tencent.mobileqq",
		AppID:           537113159,
		SubAppID:        537113159,
		SortVersionName: "8.8.88.7083",
		BuildTime:       1648004515,
		ApkSign:         apkSign,
		SDKVersion:      "6.0.0.2497",
		SSOVersion:      18,
		MiscBitmap:      184024956,
		SubSigMap:       0x10400,
		MainSigMap:      34869472,
	},
	AndroidPad: {
		ApkID:           "com.tencent.mobileqq",
		AppID:           537111338,
		SubAppID:        537111338,
		SortVersionName: "8.8.38.2266",
		BuildTime:       1632988765,
		ApkSign:         apkSign,
		SDKVersion:      "6.0.0.2487",
		SSOVersion:      17,
		MiscBitmap:      184024956,
		SubSigMap:       0x10400,
		MainSigMap:      34869472,
	},
	AndroidWatch: {
		ApkID:           "com.tencent.qqlite",
		AppID:           537064446,
		SubAppID:        537064446,
		SortVersionName: "2.0.5",
		BuildTime:       1559564731,
		ApkSign:         apkSign,
		SDKVersion:      "6.0.0.236",
		SSOVersion:      5,
		MiscBitmap:      16252796,
		SubSigMap:       0x10400,
		MainSigMap:      34869472,
		QRLogin:         true,
	},
}

// App returns the build information of p.
func (p Protocol) App() (AppVersion, error) {
	a, ok := apps[p]
	if !ok {
		return AppVersion{}, fmt.Errorf("unknown protocol %q", string(p))
	}
	return a, nil
}
