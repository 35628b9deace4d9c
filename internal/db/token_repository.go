package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/goicq/internal/login"
)

// TokenRepository реализует login.TokenStore для PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

var _ login.TokenStore = (*TokenRepository)(nil)

// NewTokenRepository создаёт новый PostgreSQL repository токенов.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// Load возвращает токен uin или login.ErrNoToken.
func (r *TokenRepository) Load(ctx context.Context, uin int64) ([]byte, error) {
	var token []byte
	err := r.pool.QueryRow(ctx, `SELECT token FROM tokens WHERE uin = $1`, uin).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, login.ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("querying token of %d: %w", uin, err)
	}
	return token, nil
}

// Save перезаписывает токен uin.
func (r *TokenRepository) Save(ctx context.Context, uin int64, token []byte) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tokens (uin, token, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (uin) DO UPDATE SET token = EXCLUDED.token, updated_at = EXCLUDED.updated_at`,
		uin, token,
	)
	if err != nil {
		return fmt.Errorf("saving token of %d: %w", uin, err)
	}
	return nil
}

// Delete удаляет токен uin. Отсутствие строки не ошибка.
func (r *TokenRepository) Delete(ctx context.Context, uin int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM tokens WHERE uin = $1`, uin); err != nil {
		return fmt.Errorf("deleting token of %d: %w", uin, err)
	}
	return nil
}
