// Package pubsub provides an in-memory publish/subscribe hub used to push events to GraphQL subscriptions.
package pubsub

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andrewwphillips/library/internal/metrics"
)

// Hub fans out values published on a named topic to every subscriber of that topic.
// Each subscriber has its own unbounded queue drained by its own goroutine, so Publish never
// blocks on a slow subscriber and never drops a value.
type Hub[T any] struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscriber[T] // topic -> subscriber ID -> subscriber
	closed bool
	wg     sync.WaitGroup // running subscriber goroutines
}

// subscriber is one stream registered with the hub
type subscriber[T any] struct {
	id    string
	topic string
	out   chan T

	mu     sync.Mutex
	queue  []T           // values published but not yet delivered
	signal chan struct{} // has a value when the queue is not empty
	done   chan struct{} // closed when the subscription ends
	once   sync.Once
}

// New creates an empty hub
func New[T any]() *Hub[T] {
	return &Hub[T]{topics: make(map[string]map[string]*subscriber[T])}
}

// Subscribe registers a new subscriber for a topic and returns the channel on which it receives values.
// The subscriber is registered before Subscribe returns, so it receives everything published after that.
// The channel is closed (and the subscriber removed) when ctx is done or the hub is closed.
func (h *Hub[T]) Subscribe(ctx context.Context, topic string) <-chan T {
	s := &subscriber[T]{
		id:     uuid.New().String(),
		topic:  topic,
		out:    make(chan T),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(s.out)
		return s.out
	}
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*subscriber[T])
		h.topics[topic] = subs
	}
	subs[s.id] = s
	h.wg.Add(1)
	h.mu.Unlock()

	metrics.Subscribers.WithLabelValues(topic).Inc()
	log.Debug().Str("subscriberID", s.id).Str("topic", topic).Msg("new subscription")

	go h.pump(ctx, s)
	return s.out
}

// pump delivers queued values to the subscriber's channel in the order they were published
func (h *Hub[T]) pump(ctx context.Context, s *subscriber[T]) {
	defer func() {
		h.remove(s)
		close(s.out)
		h.wg.Done()
	}()

	for {
		s.mu.Lock()
		var (
			v    T
			have bool
		)
		if len(s.queue) > 0 {
			v, have = s.queue[0], true
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !have {
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}

		select {
		case s.out <- v:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// remove unregisters a subscriber (if still registered)
func (h *Hub[T]) remove(s *subscriber[T]) {
	h.mu.Lock()
	if subs, ok := h.topics[s.topic]; ok {
		if _, ok := subs[s.id]; ok {
			delete(subs, s.id)
			metrics.Subscribers.WithLabelValues(s.topic).Dec()
			if len(subs) == 0 {
				delete(h.topics, s.topic)
			}
		}
	}
	h.mu.Unlock()
	log.Debug().Str("subscriberID", s.id).Str("topic", s.topic).Msg("subscription removed")
}

// Publish queues a value for every subscriber of the topic registered at the time of the call.
// It never blocks.  Returns the number of subscribers the value was queued for.
func (h *Hub[T]) Publish(topic string, v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.topics[topic]
	for _, s := range subs {
		s.push(v)
	}
	metrics.Published.WithLabelValues(topic).Inc()
	log.Debug().Str("topic", topic).Int("subscribers", len(subs)).Msg("published")
	return len(subs)
}

// push adds a value to the subscriber's queue and wakes its goroutine
func (s *subscriber[T]) push(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default: // already signalled
	}
}

// Subscribers returns the number of live subscribers of a topic
func (h *Hub[T]) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close ends all subscriptions (closing their channels) and waits for their goroutines to finish.
// Subscribing after Close returns a closed channel.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, subs := range h.topics {
		for _, s := range subs {
			s.once.Do(func() { close(s.done) })
		}
	}
	h.mu.Unlock()
	h.wg.Wait()
}
