package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/goicq/internal/db"
	"github.com/udisondev/goicq/internal/login"
	"github.com/udisondev/goicq/internal/testutil"
)

func TestTokenRepository(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	repo := db.NewTokenRepository(pool)
	ctx := context.Background()
	uin := testutil.Fixtures.Uin

	t.Run("missing", func(t *testing.T) {
		_, err := repo.Load(ctx, uin)
		assert.ErrorIs(t, err, login.ErrNoToken)
	})

	t.Run("save and overwrite", func(t *testing.T) {
		sig := testutil.Sig()
		token, err := sig.MarshalToken()
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, uin, []byte("old")))
		require.NoError(t, repo.Save(ctx, uin, token))

		got, err := repo.Load(ctx, uin)
		require.NoError(t, err)
		assert.Equal(t, token, got)

		restored, err := login.UnmarshalToken(got)
		require.NoError(t, err)
		assert.Equal(t, sig.D2Key, restored.D2Key)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, uin))
		_, err := repo.Load(ctx, uin)
		assert.ErrorIs(t, err, login.ErrNoToken)

		// повторное удаление
		assert.NoError(t, repo.Delete(ctx, uin))
	})
}
