package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReaperEvictsIdleSessions(t *testing.T) {
	store, _ := newTestStore(10, 50*time.Millisecond)

	idle := NewSession(1, 1)
	fresh := NewSession(2, 2)
	require.NoError(t, store.Put(idle))
	require.NoError(t, store.Put(fresh))
	expireActivity(idle, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewReaper(store, 10*time.Millisecond)
	go r.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok := store.Get(1)
		return !ok
	}, time.Second, 5*time.Millisecond, "idle session evicted by sweep")

	_, ok := store.Get(2)
	require.True(t, ok, "fresh session survives")
	require.True(t, idle.Done())
}

func TestReaperStopsOnContextCancel(t *testing.T) {
	store, _ := newTestStore(10, time.Hour)
	r := NewReaper(store, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
