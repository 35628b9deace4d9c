package login

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrNoToken is returned by TokenStore.Load when nothing is stored.
var ErrNoToken = errors.New("no stored token")

// TokenStore хранит сериализованный токен (Sig.MarshalToken) по uin.
// Используется для dependency injection: файл по умолчанию, Postgres в db.
type TokenStore interface {
	// Load возвращает токен или ErrNoToken.
	Load(ctx context.Context, uin int64) ([]byte, error)

	// Save перезаписывает токен.
	Save(ctx context.Context, uin int64, token []byte) error

	// Delete удаляет токен. Отсутствие токена не ошибка.
	Delete(ctx context.Context, uin int64) error
}

// FileStore keeps tokens at <Dir>/<uin>/token.
type FileStore struct {
	Dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the token file of uin.
func (s *FileStore) Path(uin int64) string {
	return filepath.Join(s.Dir, strconv.FormatInt(uin, 10), "token")
}

// Load reads the token of uin.
func (s *FileStore) Load(_ context.Context, uin int64) ([]byte, error) {
	b, err := os.ReadFile(s.Path(uin))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	return b, nil
}

// Save writes the token with owner-only permissions.
func (s *FileStore) Save(_ context.Context, uin int64, token []byte) error {
	path := s.Path(uin)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	if err := os.WriteFile(path, token, 0600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

// Delete removes the token file.
func (s *FileStore) Delete(_ context.Context, uin int64) error {
	if err := os.Remove(s.Path(uin)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}
