package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) Sync(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSyncer) Len() int {
	args := m.Called()
	return args.Int(0)
}

func TestNewWatcher(t *testing.T) {
	w := NewWatcher(new(MockSyncer), 0)
	assert.NotNil(t, w)
	assert.Equal(t, DefaultPollInterval, w.interval)
	assert.Equal(t, Status{}, w.Status())
}

func TestSubscribeUnsubscribe(t *testing.T) {
	w := NewWatcher(new(MockSyncer), time.Second)
	sub := w.Subscribe()
	assert.NotNil(t, sub)

	w.mu.RLock()
	assert.Equal(t, 1, len(w.subscribers))
	w.mu.RUnlock()

	w.Unsubscribe(sub)
	w.mu.RLock()
	assert.Equal(t, 0, len(w.subscribers))
	w.mu.RUnlock()

	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")
}

func TestPollingLoop(t *testing.T) {
	s := new(MockSyncer)
	s.On("Sync", mock.Anything).Return(nil)
	s.On("Len").Return(3)

	w := NewWatcher(s, time.Hour)
	sub := w.Subscribe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case ev := <-sub:
		assert.Equal(t, EventSynced, ev.Type)
		assert.Equal(t, 3, ev.Data.Pending)
		assert.Equal(t, 1, ev.Data.Polls)
		assert.False(t, ev.Data.LastSync.IsZero())
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for initial poll")
	}

	w.Trigger()
	select {
	case ev := <-sub:
		assert.Equal(t, 2, ev.Data.Polls)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for triggered poll")
	}

	w.Stop()
	w.Stop()
	s.AssertNumberOfCalls(t, "Sync", 2)
}

func TestPollFailure(t *testing.T) {
	s := new(MockSyncer)
	s.On("Sync", mock.Anything).Return(errors.New("backend down")).Once()
	s.On("Sync", mock.Anything).Return(nil)
	s.On("Len").Return(0)

	w := NewWatcher(s, time.Hour)
	sub := w.Subscribe()

	w.poll(context.Background())
	ev := <-sub
	assert.Equal(t, EventSyncFailed, ev.Type)
	assert.Equal(t, "backend down", ev.Data.Err)
	assert.True(t, ev.Data.LastSync.IsZero())

	w.poll(context.Background())
	ev = <-sub
	require.Equal(t, EventSynced, ev.Type)
	assert.Empty(t, w.Status().Err)
	assert.Equal(t, 2, w.Status().Polls)
}

func TestStopsOnContextCancel(t *testing.T) {
	s := new(MockSyncer)
	s.On("Sync", mock.Anything).Return(nil)
	s.On("Len").Return(0)

	w := NewWatcher(s, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.pollingLoop(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("polling loop did not stop")
	}
}
