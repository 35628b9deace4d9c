package testutil

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/udisondev/goicq/internal/login"
)

// ErrSimulated is a sentinel error for testing error handling paths
var ErrSimulated = errors.New("simulated error for testing")

// MemTokenStore — in-memory имплементация login.TokenStore для unit тестов.
// Не требует ни файловой системы, ни PostgreSQL.
type MemTokenStore struct {
	mu      sync.Mutex
	tokens  map[int64][]byte
	deletes int

	// SaveFunc подменяет Save, если задан.
	SaveFunc func(ctx context.Context, uin int64, token []byte) error
}

var _ login.TokenStore = (*MemTokenStore)(nil)

// NewMemTokenStore создаёт пустой MemTokenStore.
func NewMemTokenStore() *MemTokenStore {
	return &MemTokenStore{tokens: make(map[int64][]byte)}
}

// Load возвращает копию токена или login.ErrNoToken.
func (m *MemTokenStore) Load(_ context.Context, uin int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[uin]
	if !ok {
		return nil, login.ErrNoToken
	}
	return slices.Clone(token), nil
}

// Save сохраняет копию токена.
func (m *MemTokenStore) Save(ctx context.Context, uin int64, token []byte) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, uin, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[uin] = slices.Clone(token)
	return nil
}

// Delete удаляет токен и считает вызовы.
func (m *MemTokenStore) Delete(_ context.Context, uin int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, uin)
	m.deletes++
	return nil
}

// Put кладёт токен напрямую, минуя SaveFunc.
func (m *MemTokenStore) Put(uin int64, token []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[uin] = slices.Clone(token)
}

// Has сообщает, хранится ли токен uin.
func (m *MemTokenStore) Has(uin int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[uin]
	return ok
}

// Deletes возвращает количество вызовов Delete.
func (m *MemTokenStore) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

// Uins возвращает uin всех сохранённых токенов.
func (m *MemTokenStore) Uins() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.tokens))
}
