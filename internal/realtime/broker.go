package realtime

import (
	"errors"
	"fmt"
	"sync"

	"spacechat/internal/crash"
	"spacechat/internal/logger"
	"spacechat/internal/models"
)

// Broker is the in-process push channel. Persisted messages are
// published to it and fanned out to every subscriber of the owning
// conversation. Delivery is at-least-once and asynchronous; subscribers
// deduplicate by message id. A subscriber that falls behind its buffer
// is evicted and notified through its drop callback.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]*subscriber
	nextID uint64
	buffer int
}

type subscriber struct {
	id             uint64
	conversationID string
	events         chan models.Message
	onEvent        func(models.Message)
	onDrop         func()
	closeOnce      sync.Once
}

// NewBroker creates a broker with the given per-subscriber buffer size.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[string]map[uint64]*subscriber),
		buffer: buffer,
	}
}

// SubscribeInserts registers onEvent for every message persisted in the
// conversation and returns an unsubscribe function. onDrop, if non-nil,
// fires when the broker evicts the subscriber for falling behind.
func (b *Broker) SubscribeInserts(conversationID string, onEvent func(models.Message), onDrop func()) (func(), error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	if onEvent == nil {
		return nil, errors.New("event callback is required")
	}

	sub := &subscriber{
		conversationID: conversationID,
		events:         make(chan models.Message, b.buffer),
		onEvent:        onEvent,
		onDrop:         onDrop,
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	if b.subs[conversationID] == nil {
		b.subs[conversationID] = make(map[uint64]*subscriber)
	}
	b.subs[conversationID][sub.id] = sub
	b.mu.Unlock()

	crash.SafeGoroutine(fmt.Sprintf("broker-sub-%d", sub.id), sub.run)

	return func() {
		if b.remove(sub) {
			sub.close()
		}
	}, nil
}

// PublishInsert delivers a persisted message to every subscriber of its
// conversation. Subscribers whose buffers are full are evicted.
func (b *Broker) PublishInsert(msg models.Message) {
	var dropped []*subscriber

	b.mu.RLock()
	for _, sub := range b.subs[msg.ConversationID] {
		select {
		case sub.events <- msg:
		default:
			dropped = append(dropped, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range dropped {
		logger.Warningf("subscriber %d on conversation %s fell behind, dropping it", sub.id, sub.conversationID)
		if b.remove(sub) {
			sub.close()
			if sub.onDrop != nil {
				sub.onDrop()
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers for a
// conversation.
func (b *Broker) SubscriberCount(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}

// remove detaches the subscriber from the fan-out map. Publishing holds
// the read lock while sending, so a removed subscriber's channel can be
// closed safely afterwards.
func (b *Broker) remove(sub *subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.subs[sub.conversationID]
	if !ok {
		return false
	}
	if _, ok := group[sub.id]; !ok {
		return false
	}
	delete(group, sub.id)
	if len(group) == 0 {
		delete(b.subs, sub.conversationID)
	}
	return true
}

func (s *subscriber) run() {
	for msg := range s.events {
		s.onEvent(msg)
	}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}
