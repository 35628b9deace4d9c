package tlv

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/packet"
)

// localeID is zh_CN, the only locale the cluster accepts for this build.
const localeID = 2052

// DefaultDomains are the web domains t511 asks cookies for.
var DefaultDomains = []string{
	"tenpay.com", "openmobile.qq.com", "docs.qq.com", "connect.qq.com",
	"qzone.qq.com", "vip.qq.com", "gamecenter.qq.com", "qun.qq.com", "game.qq.com",
	"qqweb.qq.com", "office.qq.com", "ti.qq.com", "mail.qq.com", "mma.qq.com",
}

// deviceLockSalt is mixed into t401 with the guid and t402.
var deviceLockSalt = []byte("stMNokHgxZUGhsYp")

var builders map[uint16]builder

// Set up in init: t144 and t525 pack nested fields through the same table.
func init() {
	builders = map[uint16]builder{
		0x001: t1,
		0x002: t2,
		0x008: t8,
		0x016: t16,
		0x018: t18,
		0x01B: t1B,
		0x01D: t1D,
		0x01F: t1F,
		0x033: t33,
		0x035: t35,
		0x100: t100,
		0x104: raw(func(e *Env) []byte { return e.T104 }),
		0x106: t106,
		0x107: t107,
		0x108: t108,
		0x109: t109,
		0x10A: raw(func(e *Env) []byte { return e.TGT }),
		0x116: t116,
		0x124: t124,
		0x128: t128,
		0x141: t141,
		0x142: t142,
		0x143: raw(func(e *Env) []byte { return e.D2 }),
		0x144: t144,
		0x145: t145,
		0x147: t147,
		0x154: t154,
		0x16A: raw(func(e *Env) []byte { return e.T16A }),
		0x16E: t16E,
		0x174: raw(func(e *Env) []byte { return e.T174 }),
		0x177: t177,
		0x17A: t17A,
		0x17C: t17C,
		0x187: t187,
		0x188: t188,
		0x191: t191,
		0x193: t193,
		0x194: t194,
		0x197: zeroByte,
		0x198: zeroByte,
		0x202: t202,
		0x318: raw(func(e *Env) []byte { return e.T318 }),
		0x401: t401,
		0x511: t511,
		0x516: t516,
		0x521: t521,
		0x525: t525,
		0x52D: t52D,
		0x536: t536,
	}
}

func missing(what string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, what)
}

func dev(e *Env) (*device.Device, error) {
	if e.Device == nil {
		return nil, missing("device")
	}
	return e.Device, nil
}

// raw builds a field whose body is a continuation blob echoed verbatim.
func raw(get func(e *Env) []byte) builder {
	return func(e *Env, w *packet.Writer) error {
		v := get(e)
		if len(v) == 0 {
			return missing("continuation data")
		}
		w.WriteBytes(v)
		return nil
	}
}

func zeroByte(_ *Env, w *packet.Writer) error {
	w.WriteU8(0)
	return nil
}

func randU32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func t1(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	ip := d.IPAddress
	if len(ip) != 4 {
		ip = []byte{0, 0, 0, 0}
	}
	w.WriteU16(1) // ip version
	w.WriteU32(randU32())
	w.WriteU32(uint32(e.Uin))
	w.WriteU32(uint32(time.Now().Unix()))
	w.WriteBytes(ip)
	w.WriteU16(0)
	return nil
}

func t2(e *Env, w *packet.Writer) error {
	if e.CaptchaResult == "" || len(e.CaptchaSign) == 0 {
		return missing("captcha result")
	}
	w.WriteU16(0)
	w.WriteTlvString(e.CaptchaResult)
	w.WriteTlv(e.CaptchaSign)
	return nil
}

func t8(_ *Env, w *packet.Writer) error {
	w.WriteU16(0)
	w.WriteU32(localeID)
	w.WriteU16(0)
	return nil
}

func t16(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteU32(e.App.SSOVersion)
	w.WriteU32(16)
	w.WriteU32(e.App.SubAppID)
	w.WriteBytes(d.Guid())
	w.WriteTlvString(e.App.ApkID)
	w.WriteTlvString(e.App.SortVersionName)
	w.WriteTlv(e.App.ApkSign)
	return nil
}

func t18(e *Env, w *packet.Writer) error {
	w.WriteU16(1) // ping version
	w.WriteU32(1536)
	w.WriteU32(16)
	w.WriteU32(0)
	w.WriteU32(uint32(e.Uin))
	w.WriteU16(0)
	w.WriteU16(0)
	return nil
}

// t1B describes the QR image: micro, version, size, margin, dpi, ec level, hint.
func t1B(_ *Env, w *packet.Writer) error {
	for _, v := range []uint32{0, 0, 3, 4, 72, 2, 2} {
		w.WriteU32(v)
	}
	return nil
}

func t1D(e *Env, w *packet.Writer) error {
	w.WriteU8(1)
	w.WriteU32(e.App.MiscBitmap)
	w.WriteU32(0)
	w.WriteU8(0)
	w.WriteU32(0)
	return nil
}

func t1F(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteU8(0) // rooted
	w.WriteTlvString(d.OSType)
	w.WriteTlvString(d.Version.Release)
	w.WriteU16(2) // network type: wifi
	w.WriteTlvString(d.SimInfo)
	w.WriteTlv(nil)
	w.WriteTlvString(d.APN)
	return nil
}

func t33(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(d.Guid())
	return nil
}

func t35(_ *Env, w *packet.Writer) error {
	w.WriteU32(8) // product type
	return nil
}

func t100(e *Env, w *packet.Writer) error {
	w.WriteU16(1) // db buf version
	w.WriteU32(e.App.SSOVersion)
	w.WriteU32(16)
	w.WriteU32(e.App.SubAppID)
	w.WriteU32(0)
	w.WriteU32(e.App.MainSigMap)
	return nil
}

func t106(e *Env, w *packet.Writer) error {
	if len(e.T106) > 0 {
		w.WriteBytes(e.T106)
		return nil
	}
	if len(e.PasswordMD5) != 16 {
		return missing("password md5")
	}
	d, err := dev(e)
	if err != nil {
		return err
	}

	body := packet.Build(func(b *packet.Writer) {
		b.WriteU16(4) // tgtgt version
		b.WriteU32(randU32())
		b.WriteU32(e.App.SSOVersion)
		b.WriteU32(16)
		b.WriteU32(0)
		b.WriteU64(uint64(e.Uin))
		b.WriteU32(uint32(time.Now().Unix()))
		b.WriteBytes([]byte{0, 0, 0, 0})
		b.WriteU8(1) // password login
		b.WriteBytes(e.PasswordMD5)
		b.WriteBytes(d.TgtgtKey)
		b.WriteU32(0)
		b.WriteBool(true)
		b.WriteBytes(d.Guid())
		b.WriteU32(e.App.SubAppID)
		b.WriteU32(1)
		b.WriteTlvString(strconv.FormatInt(e.Uin, 10))
		b.WriteU16(0)
	})
	var salt [8]byte
	binary.BigEndian.PutUint32(salt[4:], uint32(e.Uin))
	key := crypto.MD5(e.PasswordMD5, salt[:])

	sealed, err := crypto.TeaEncrypt(body, key)
	if err != nil {
		return err
	}
	w.WriteBytes(sealed)
	return nil
}

func t107(_ *Env, w *packet.Writer) error {
	w.WriteU16(0) // pic type
	w.WriteU8(0)
	w.WriteU16(0)
	w.WriteU8(1)
	return nil
}

func t108(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes([]byte(d.IMEI))
	return nil
}

func t109(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(crypto.MD5([]byte(d.AndroidID)))
	return nil
}

func t116(e *Env, w *packet.Writer) error {
	w.WriteU8(0)
	w.WriteU32(e.App.MiscBitmap)
	w.WriteU32(e.App.SubSigMap)
	w.WriteU8(1)
	w.WriteU32(1600000226) // app id list
	return nil
}

func t124(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteTlvLimited([]byte(d.OSType), 16)
	w.WriteTlvLimited([]byte(d.Version.Release), 16)
	w.WriteU16(2)
	w.WriteTlvLimited([]byte(d.SimInfo), 16)
	w.WriteTlvLimited(nil, 16)
	w.WriteTlvLimited([]byte(d.APN), 16)
	return nil
}

func t128(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteU16(0)
	w.WriteBool(false)     // guid from file null
	w.WriteBool(true)      // guid available
	w.WriteBool(false)     // guid changed
	w.WriteU32(0x01000000) // guid flag: from file
	w.WriteTlvLimited([]byte(d.Model), 32)
	w.WriteTlvLimited(d.Guid(), 16)
	w.WriteTlvLimited([]byte(d.Brand), 16)
	return nil
}

func t141(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteU16(1)
	w.WriteTlvString(d.SimInfo)
	w.WriteU16(2)
	w.WriteTlvString(d.APN)
	return nil
}

func t142(e *Env, w *packet.Writer) error {
	w.WriteU16(0)
	w.WriteTlvLimited([]byte(e.App.ApkID), 32)
	return nil
}

// t144 is a nested field list sealed with the tgtgt key.
func t144(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	nested := []uint16{0x109, 0x52D, 0x124, 0x128, 0x16E}
	inner, err := Pack(e, nested...)
	if err != nil {
		return err
	}
	plain := packet.Build(func(b *packet.Writer) {
		b.WriteU16(uint16(len(nested)))
		b.WriteBytes(inner)
	})
	sealed, err := crypto.TeaEncrypt(plain, d.TgtgtKey)
	if err != nil {
		return err
	}
	w.WriteBytes(sealed)
	return nil
}

func t145(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(d.Guid())
	return nil
}

func t147(e *Env, w *packet.Writer) error {
	w.WriteU32(16)
	w.WriteTlvLimited([]byte(e.App.SortVersionName), 32)
	w.WriteTlvLimited(e.App.ApkSign, 32)
	return nil
}

func t154(e *Env, w *packet.Writer) error {
	w.WriteU32(uint32(e.Seq))
	return nil
}

func t16E(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes([]byte(d.Model))
	return nil
}

func t177(e *Env, w *packet.Writer) error {
	w.WriteU8(1)
	w.WriteU32(e.App.BuildTime)
	w.WriteTlvString(e.App.SDKVersion)
	return nil
}

func t17A(_ *Env, w *packet.Writer) error {
	w.WriteU32(9) // sms app id
	return nil
}

func t17C(e *Env, w *packet.Writer) error {
	if e.SMSCode == "" {
		return missing("sms code")
	}
	w.WriteTlvString(e.SMSCode)
	return nil
}

func t187(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(crypto.MD5([]byte(d.MacAddress)))
	return nil
}

func t188(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(crypto.MD5([]byte(d.AndroidID)))
	return nil
}

// t191 advertises verification capabilities; 0x82 enables the slider.
func t191(_ *Env, w *packet.Writer) error {
	w.WriteU8(0x82)
	return nil
}

func t193(e *Env, w *packet.Writer) error {
	if e.SliderTicket == "" {
		return missing("slider ticket")
	}
	w.WriteBytes([]byte(e.SliderTicket))
	return nil
}

func t194(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(d.IMSIMD5)
	return nil
}

func t202(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteTlvLimited(crypto.MD5([]byte(d.WifiBSSID)), 16)
	w.WriteTlvLimited([]byte(d.WifiSSID), 32)
	return nil
}

func t401(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	w.WriteBytes(crypto.MD5(d.Guid(), deviceLockSalt, e.T402))
	return nil
}

func t511(e *Env, w *packet.Writer) error {
	domains := e.Domains
	if len(domains) == 0 {
		domains = DefaultDomains
	}
	w.WriteU16(uint16(len(domains)))
	for _, d := range domains {
		w.WriteU8(1)
		w.WriteTlvString(d)
	}
	return nil
}

func t516(_ *Env, w *packet.Writer) error {
	w.WriteU32(0) // source type
	return nil
}

func t521(_ *Env, w *packet.Writer) error {
	w.WriteU32(0) // product type
	w.WriteU16(0)
	return nil
}

func t525(e *Env, w *packet.Writer) error {
	w.WriteU16(1)
	return packOne(e, w, 0x536)
}

func t52D(e *Env, w *packet.Writer) error {
	d, err := dev(e)
	if err != nil {
		return err
	}
	report, err := d.Report()
	if err != nil {
		return err
	}
	w.WriteBytes(report)
	return nil
}

func t536(_ *Env, w *packet.Writer) error {
	w.WriteBytes([]byte{0x01, 0x00}) // login extra data: none
	return nil
}
