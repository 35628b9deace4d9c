package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/pb"
)

func luhnValid(s string) bool {
	sum := 0
	for i := range len(s) {
		n := int(s[len(s)-1-i] - '0')
		if i%2 == 1 {
			n *= 2
			if n > 9 {
				n -= 9
			}
		}
		sum += n
	}
	return sum%10 == 0
}

func TestGenerateIMEI(t *testing.T) {
	for range 100 {
		imei := GenerateIMEI()
		require.Len(t, imei, 15)
		assert.True(t, luhnValid(imei), imei)
	}
}

func TestGenerate(t *testing.T) {
	d, err := Generate()
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	assert.Len(t, d.Guid(), 16)
	assert.Equal(t, d.Guid(), d.Guid(), "guid is derived, not random")
	assert.Len(t, d.TgtgtKey, 16)
	assert.Len(t, d.BootID, 36)

	other, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, d.TgtgtKey, other.TgtgtKey)
}

func TestDevice_Report(t *testing.T) {
	d, err := Generate()
	require.NoError(t, err)

	b, err := d.Report()
	require.NoError(t, err)
	m, err := pb.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, d.Bootloader, m.String(1))
	assert.Equal(t, d.BootID, m.String(6))
	assert.Equal(t, d.AndroidID, m.String(7))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "10001", "device.json")
	d, err := Generate()
	require.NoError(t, err)
	require.NoError(t, d.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tgtgt_key": "`)
}

func TestLoadOrGenerate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")

	first, created, err := LoadOrGenerate(path)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := LoadOrGenerate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.IMEI, second.IMEI)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0600))
	_, err := Load(bad)
	require.Error(t, err)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"protocol":"android_phone"}`), 0600))
	_, err = Load(empty)
	require.ErrorContains(t, err, "imei")

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestProtocol_App(t *testing.T) {
	app, err := AndroidWatch.App()
	require.NoError(t, err)
	assert.True(t, app.QRLogin)
	assert.Equal(t, "com.tencent.qqlite", app.ApkID)

	_, err = Protocol("toaster").App()
	require.Error(t, err)
}
