// Package realtime fans inserted alerts out to live viewers.
package realtime

import (
	"sync"

	"sos-service/internal/logging"
	"sos-service/internal/metrics"
	"sos-service/internal/models"
)

// Broker delivers every published alert to every open subscription, in publish order.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *logging.Logger
}

func NewBroker(buffer int, logger *logging.Logger) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscription is one viewer's feed. Events is closed once the subscription ends.
type Subscription struct {
	broker *Broker
	events chan models.Alert
	once   sync.Once
}

// Subscribe opens a feed that sees every alert published from now on.
func (b *Broker) Subscribe() *Subscription {
	s := &Subscription{broker: b, events: make(chan models.Alert, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	metrics.Subscribers.Inc()
	b.logger.Debugf("Added viewer subscription (total: %d)", n)
	return s
}

// Publish hands a to every subscriber. A subscriber whose buffer is full is closed
// instead of stalling the others.
func (b *Broker) Publish(a models.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.events <- a:
		default:
			b.logger.Warnf("Viewer fell behind, dropping subscription")
			metrics.DroppedSubscribers.Inc()
			b.removeLocked(s)
		}
	}
}

// Len reports the number of open subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) removeLocked(s *Subscription) {
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	s.once.Do(func() { close(s.events) })
	metrics.Subscribers.Dec()
}

func (s *Subscription) Events() <-chan models.Alert {
	return s.events
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	s.broker.removeLocked(s)
	n := len(s.broker.subs)
	s.broker.mu.Unlock()
	s.broker.logger.Debugf("Removed viewer subscription (remaining: %d)", n)
}
