package store

import (
	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

// Subscribe registers for change notifications. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (s *Store) Subscribe() (<-chan models.Change, func()) {
	ch := make(chan models.Change, s.opts.SubscriberBuffer)

	s.subMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}

// SubscriberCount returns the number of active subscriptions
func (s *Store) SubscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subscribers)
}

// publish delivers a change without blocking; a full subscriber misses it
func (s *Store) publish(change models.Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- change:
		default:
			s.logger.Debug("subscriber lagging, dropped change",
				zap.Uint64("subscriber", id),
				zap.Uint64("revision", change.Revision))
		}
	}
}
