package testutil

import (
	"context"
	"testing"
	"time"
)

// ContextWithTimeout создаёт context с timeout и автоматически отменяет его при завершении теста.
// Используется для Connect и continuation-вызовов, чтобы зависший обмен не блокировал тест.
func ContextWithTimeout(t testing.TB, d time.Duration) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
