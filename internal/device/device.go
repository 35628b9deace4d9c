// Package device describes the virtual Android device and client build the
// session authenticates as.
package device

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/udisondev/goicq/internal/crypto"
	"github.com/udisondev/goicq/internal/pb"
)

// HexBytes is stored as a hex string in device.json.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	d, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hex field: %w", err)
	}
	*h = d
	return nil
}

// OSVersion is the Android build version block.
type OSVersion struct {
	Incremental string `json:"incremental"`
	Release     string `json:"release"`
	Codename    string `json:"codename"`
	SDK         uint32 `json:"sdk"`
}

// Device is the persisted identity of the virtual phone.
type Device struct {
	Display      string    `json:"display"`
	Product      string    `json:"product"`
	Device       string    `json:"device"`
	Board        string    `json:"board"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Bootloader   string    `json:"bootloader"`
	FingerPrint  string    `json:"finger_print"`
	BootID       string    `json:"boot_id"`
	ProcVersion  string    `json:"proc_version"`
	BaseBand     string    `json:"base_band"`
	SimInfo      string    `json:"sim_info"`
	OSType       string    `json:"os_type"`
	MacAddress   string    `json:"mac_address"`
	IPAddress    []byte    `json:"ip_address"`
	WifiBSSID    string    `json:"wifi_bssid"`
	WifiSSID     string    `json:"wifi_ssid"`
	IMEI         string    `json:"imei"`
	AndroidID    string    `json:"android_id"`
	APN          string    `json:"apn"`
	VendorName   string    `json:"vendor_name"`
	VendorOSName string    `json:"vendor_os_name"`
	IMSIMD5      HexBytes  `json:"imsi_md5"`
	TgtgtKey     HexBytes  `json:"tgtgt_key"`
	Protocol     Protocol  `json:"protocol"`
	Version      OSVersion `json:"version"`
}

// Guid is md5(imei + mac), the stable device id sent in several TLVs.
func (d *Device) Guid() []byte {
	return crypto.MD5([]byte(d.IMEI), []byte(d.MacAddress))
}

// Generate creates a random but self-consistent device.
func Generate() (*Device, error) {
	seed := make([]byte, 16)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating device seed: %w", err)
	}

	d := &Device{
		Display:      "GOICQ." + randDigits(6) + ".001",
		Product:      "goicq",
		Device:       "goicq",
		Board:        "goicq",
		Brand:        "udisondev",
		Model:        "goicq",
		Bootloader:   "unknown",
		FingerPrint:  "udisondev/goicq/goicq:10/GOICQ.200122.001/" + randDigits(7) + ":user/release-keys",
		BootID:       uuid.NewString(),
		ProcVersion:  "Linux version 3.0.31-" + randHex(4) + " (android-build@xxx.xxx.xxx.xxx.com)",
		SimInfo:      "T-Mobile",
		OSType:       "android",
		MacAddress:   "00:50:56:C0:00:08",
		IPAddress:    []byte{10, 0, 1, 3},
		WifiBSSID:    "00:50:56:C0:00:08",
		WifiSSID:     "<unknown ssid>",
		IMEI:         GenerateIMEI(),
		AndroidID:    "GOICQ." + randDigits(6) + ".001",
		APN:          "wifi",
		VendorName:   "MIUI",
		VendorOSName: "goicq",
		IMSIMD5:      crypto.MD5(seed),
		Protocol:     AndroidPhone,
		Version: OSVersion{
			Incremental: "5891938",
			Release:     "10",
			Codename:    "REL",
			SDK:         29,
		},
	}
	d.TgtgtKey = crypto.MD5(seed, d.Guid())
	return d, nil
}

// GenerateIMEI returns a random 15-digit IMEI with a valid Luhn check digit.
func GenerateIMEI() string {
	digits := "86" + randDigits(12)
	sum := 0
	for i := range len(digits) {
		n := int(digits[i] - '0')
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	return fmt.Sprintf("%s%d", digits, (10-sum%10)%10)
}

// Report is the t52d device report, encoded with the tag codec.
func (d *Device) Report() ([]byte, error) {
	return pb.Encode(pb.Message{
		1: d.Bootloader,
		2: d.ProcVersion,
		3: d.Version.Codename,
		4: d.Version.Incremental,
		5: d.FingerPrint,
		6: d.BootID,
		7: d.AndroidID,
		8: d.BaseBand,
		9: d.Version.Incremental,
	})
}

// Validate reports fields a usable device must have.
func (d *Device) Validate() error {
	var missing []string
	if d.IMEI == "" {
		missing = append(missing, "imei")
	}
	if d.AndroidID == "" {
		missing = append(missing, "android_id")
	}
	if len(d.TgtgtKey) != crypto.TeaKeySize {
		missing = append(missing, "tgtgt_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid device: missing %s", strings.Join(missing, ", "))
	}
	if _, err := d.Protocol.App(); err != nil {
		return fmt.Errorf("invalid device: %w", err)
	}
	return nil
}

// Load reads a device file. A missing file returns os.ErrNotExist (wrapped).
func Load(path string) (*Device, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}
	var d Device
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing device file %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Save writes the device file with owner-only permissions.
func (d *Device) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating device directory: %w", err)
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding device: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing device file: %w", err)
	}
	return nil
}

// LoadOrGenerate loads path, generating and saving a new device if the file
// does not exist yet.
func LoadOrGenerate(path string) (*Device, bool, error) {
	d, err := Load(path)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}
	if d, err = Generate(); err != nil {
		return nil, false, err
	}
	if err := d.Save(path); err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func randDigits(n int) string {
	var sb strings.Builder
	for range n {
		v, _ := rand.Int(rand.Reader, big.NewInt(10))
		sb.WriteByte(byte('0' + v.Int64()))
	}
	return sb.String()
}

func randHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
