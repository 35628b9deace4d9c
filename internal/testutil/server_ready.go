package testutil

import (
	"context"
	"testing"
	"time"
)

// WaitFor ждёт пока check вернёт true (polling с timeout).
// Используется вместо time.Sleep для синхронизации в integration тестах.
//
// Пример:
//
//	cluster.Drop()
//	testutil.WaitFor(t, func() bool {
//	    return c.Status() == client.StatusOnline && cluster.Conns() == 2
//	}, constants.TestEventWait)
func WaitFor(t testing.TB, check func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if check() {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("condition not met within %v", timeout)
		case <-ticker.C:
		}
	}
}
