package server

import (
	"context"
	"testing"
	"time"

	"github.com/okamoto/hr-dashboard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubscriberManager_RegisterLimit(t *testing.T) {
	sm := NewSubscriberManager(2, zap.NewNop())

	a, err := sm.Register("10.0.0.1:1")
	require.NoError(t, err)
	_, err = sm.Register("10.0.0.2:1")
	require.NoError(t, err)

	_, err = sm.Register("10.0.0.3:1")
	assert.ErrorIs(t, err, ErrTooManySubscribers)
	assert.Equal(t, 2, sm.Count())

	sm.Unregister(a.ID)
	sm.Unregister(a.ID)
	assert.Equal(t, 1, sm.Count())
	_, ok := sm.Info(a.ID)
	assert.False(t, ok)

	select {
	case <-a.Done():
	default:
		t.Fatal("unregistered subscriber not closed")
	}
}

func TestSubscriberManager_BroadcastDropsWhenFull(t *testing.T) {
	sm := NewSubscriberManager(0, zap.NewNop())
	sm.buffer = 1

	sub, err := sm.Register("client")
	require.NoError(t, err)

	sm.Broadcast(models.Change{Revision: 1})
	sm.Broadcast(models.Change{Revision: 2})

	got := <-sub.Events()
	assert.Equal(t, uint64(1), got.Revision)

	info, ok := sm.Info(sub.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), info.EventsDropped)
}

func TestSubscriberManager_Run(t *testing.T) {
	sm := NewSubscriberManager(0, zap.NewNop())
	sub, err := sm.Register("client")
	require.NoError(t, err)

	changes := make(chan models.Change, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sm.Run(ctx, changes)
		close(done)
	}()

	changes <- models.Change{Revision: 7, Kind: models.ChangeBookmarks}
	select {
	case got := <-sub.Events():
		assert.Equal(t, uint64(7), got.Revision)
	case <-time.After(time.Second):
		t.Fatal("change not forwarded")
	}

	cancel()
	<-done
}

func TestSubscriberManager_AllOldestFirst(t *testing.T) {
	sm := NewSubscriberManager(0, zap.NewNop())
	first, _ := sm.Register("10.0.0.1:5000")
	second, _ := sm.Register("10.0.0.2:5000")

	sm.mu.Lock()
	sm.info[first.ID].ConnectedAt = time.Now().Add(-time.Minute)
	sm.mu.Unlock()

	all := sm.All()
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, "10.0.0.2:5000", all[1].RemoteAddr)
}

func TestSubscriberManager_MarkSentAndCleanup(t *testing.T) {
	sm := NewSubscriberManager(0, zap.NewNop())
	fresh, _ := sm.Register("fresh")
	stale, _ := sm.Register("stale")

	sm.mu.Lock()
	sm.info[stale.ID].LastActive = time.Now().Add(-10 * time.Minute)
	sm.mu.Unlock()

	sm.MarkSent(fresh.ID, true)
	info, _ := sm.Info(fresh.ID)
	assert.Equal(t, int64(1), info.EventsSent)

	assert.Equal(t, 1, sm.CleanupStale(5*time.Minute))
	assert.Equal(t, 1, sm.Count())
	assert.Len(t, sm.All(), 1)

	select {
	case <-stale.Done():
	default:
		t.Fatal("stale subscriber not closed")
	}
}

func TestSubscriberManager_CloseAll(t *testing.T) {
	sm := NewSubscriberManager(0, zap.NewNop())
	sub, _ := sm.Register("client")

	sm.CloseAll()
	assert.Zero(t, sm.Count())
	<-sub.Done()

	_, err := sm.Register("late")
	assert.ErrorIs(t, err, ErrManagerClosed)
}
