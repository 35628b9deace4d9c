package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/db"
	"github.com/udisondev/goicq/internal/device"
	"github.com/udisondev/goicq/internal/testutil"
)

func TestDeviceRepository(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := db.NewDeviceRepository(pool)
	ctx := context.Background()
	uin := testutil.Fixtures.Uin

	_, err := repo.Load(ctx, uin)
	require.ErrorIs(t, err, db.ErrNoDevice)

	first, err := repo.LoadOrGenerate(ctx, uin, device.AndroidWatch)
	require.NoError(t, err)
	assert.Equal(t, device.AndroidWatch, first.Protocol)

	second, err := repo.LoadOrGenerate(ctx, uin, device.AndroidPhone)
	require.NoError(t, err)
	assert.Equal(t, first.IMEI, second.IMEI)
	assert.Equal(t, first.TgtgtKey, second.TgtgtKey)
	assert.Equal(t, device.AndroidWatch, second.Protocol)

	other := testutil.NewDevice(t, device.AndroidPad)
	require.NoError(t, repo.Save(ctx, uin, other))
	got, err := repo.Load(ctx, uin)
	require.NoError(t, err)
	assert.Equal(t, other.IMEI, got.IMEI)
	assert.Equal(t, device.AndroidPad, got.Protocol)
}
