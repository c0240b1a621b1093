// Package watcher keeps the confirmation queue in step with the wallet's
// pending requests by polling on a ticker.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

const DefaultPollInterval = 2 * time.Second

// Syncer reloads the pending queue.
type Syncer interface {
	Sync(ctx context.Context) error
	Len() int
}

// Watcher polls a Syncer and reports the outcome to subscribers.
type Watcher struct {
	syncer   Syncer
	interval time.Duration
	log      log.Logger

	status      Status
	subscribers []Subscriber
	mu          sync.RWMutex

	trigger  chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher polling s every interval.
func NewWatcher(s Syncer, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{
		syncer:   s,
		interval: interval,
		log:      log.New("module", "watcher"),
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (w *Watcher) notify(event Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, sub := range w.subscribers {
		select {
		case sub <- event:
		default:
			// Slow subscribers miss the event; the next poll reports again.
		}
	}
}

// Start begins the polling loop.
func (w *Watcher) Start(ctx context.Context) {
	go w.pollingLoop(ctx)
}

// Stop stops the polling loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// Trigger requests a poll without waiting for the next tick.
func (w *Watcher) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Status returns the outcome of the last poll.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	w.poll(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.poll(ctx)
		case <-w.trigger:
			w.poll(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	err := w.syncer.Sync(ctx)

	w.mu.Lock()
	w.status.Polls++
	w.status.Pending = w.syncer.Len()
	ev := Event{Type: EventSynced}
	if err != nil {
		w.status.Err = err.Error()
		ev.Type = EventSyncFailed
	} else {
		w.status.Err = ""
		w.status.LastSync = time.Now()
	}
	ev.Data = w.status
	w.mu.Unlock()

	if err != nil {
		w.log.Warn("Pending queue sync failed", "err", err)
	}
	w.notify(ev)
}
