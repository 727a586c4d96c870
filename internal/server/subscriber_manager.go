package server

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrTooManySubscribers is returned when the subscriber limit is reached
	ErrTooManySubscribers = errors.New("too many event subscribers")
	// ErrManagerClosed is returned by Register after CloseAll
	ErrManagerClosed = errors.New("subscriber manager closed")
)

// Subscriber is one connected event stream
type Subscriber struct {
	ID     string
	events chan models.Change
	done   chan struct{}
	once   sync.Once
}

// Events delivers store changes for this subscriber
func (s *Subscriber) Events() <-chan models.Change {
	return s.events
}

// Done is closed when the subscriber is evicted or the manager shuts down
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// SubscriberManager tracks event stream clients and fans store changes out to them
type SubscriberManager struct {
	subscribers map[string]*Subscriber
	info        map[string]*models.SubscriberInfo
	max         int
	buffer      int
	closed      bool
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewSubscriberManager creates a manager accepting at most max subscribers
func NewSubscriberManager(max int, logger *zap.Logger) *SubscriberManager {
	return &SubscriberManager{
		subscribers: make(map[string]*Subscriber),
		info:        make(map[string]*models.SubscriberInfo),
		max:         max,
		buffer:      16,
		logger:      logger,
	}
}

// Register adds a new subscriber
func (sm *SubscriberManager) Register(remoteAddr string) (*Subscriber, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.closed {
		return nil, ErrManagerClosed
	}
	if sm.max > 0 && len(sm.subscribers) >= sm.max {
		sm.logger.Warn("max subscribers reached, rejecting",
			zap.String("remote_addr", remoteAddr))
		return nil, ErrTooManySubscribers
	}

	now := time.Now()
	sub := &Subscriber{
		ID:     uuid.NewString(),
		events: make(chan models.Change, sm.buffer),
		done:   make(chan struct{}),
	}
	sm.subscribers[sub.ID] = sub
	sm.info[sub.ID] = &models.SubscriberInfo{
		ID:          sub.ID,
		RemoteAddr:  remoteAddr,
		ConnectedAt: now,
		LastActive:  now,
	}

	sm.logger.Info("subscriber registered",
		zap.String("subscriber", sub.ID),
		zap.String("remote_addr", remoteAddr))

	return sub, nil
}

// Unregister removes a subscriber
func (sm *SubscriberManager) Unregister(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sub, exists := sm.subscribers[id]; exists {
		sub.close()
		delete(sm.subscribers, id)
		delete(sm.info, id)

		sm.logger.Info("subscriber unregistered", zap.String("subscriber", id))
	}
}

// Broadcast queues change for every subscriber without blocking. A
// subscriber whose buffer is full misses the change.
func (sm *SubscriberManager) Broadcast(change models.Change) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, sub := range sm.subscribers {
		select {
		case sub.events <- change:
		default:
			if info, ok := sm.info[id]; ok {
				info.EventsDropped++
			}
			sm.logger.Debug("subscriber lagging, dropped change",
				zap.String("subscriber", id),
				zap.Uint64("revision", change.Revision))
		}
	}
}

// Run forwards changes to all subscribers until ctx is done or changes is closed
func (sm *SubscriberManager) Run(ctx context.Context, changes <-chan models.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			sm.Broadcast(change)
		}
	}
}

// MarkSent records a successful write to the subscriber
func (sm *SubscriberManager) MarkSent(id string, event bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if info, exists := sm.info[id]; exists {
		if event {
			info.EventsSent++
		}
		info.LastActive = time.Now()
	}
}

// Info returns a copy of the subscriber's details
func (sm *SubscriberManager) Info(id string) (models.SubscriberInfo, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	info, exists := sm.info[id]
	if !exists {
		return models.SubscriberInfo{}, false
	}
	return *info, true
}

// All returns details of every active subscriber, oldest connection first
func (sm *SubscriberManager) All() []models.SubscriberInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]models.SubscriberInfo, 0, len(sm.info))
	for _, info := range sm.info {
		out = append(out, *info)
	}
	slices.SortFunc(out, func(a, b models.SubscriberInfo) int {
		return cmp.Or(a.ConnectedAt.Compare(b.ConnectedAt), strings.Compare(a.ID, b.ID))
	})
	return out
}

// Count returns the number of active subscribers
func (sm *SubscriberManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.subscribers)
}

// CloseAll disconnects every subscriber and refuses new ones
func (sm *SubscriberManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.closed = true
	for id, sub := range sm.subscribers {
		sub.close()
		sm.logger.Info("closing subscriber", zap.String("subscriber", id))
	}

	sm.subscribers = make(map[string]*Subscriber)
	sm.info = make(map[string]*models.SubscriberInfo)
}

// CleanupStale evicts subscribers with no successful write within maxIdle
func (sm *SubscriberManager) CleanupStale(maxIdle time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, info := range sm.info {
		if now.Sub(info.LastActive) <= maxIdle {
			continue
		}
		if sub, exists := sm.subscribers[id]; exists {
			sub.close()
			delete(sm.subscribers, id)
			delete(sm.info, id)
			removed++

			sm.logger.Info("stale subscriber removed",
				zap.String("subscriber", id),
				zap.Duration("idle_time", now.Sub(info.LastActive)))
		}
	}
	return removed
}
