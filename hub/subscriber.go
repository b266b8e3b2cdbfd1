package hub

import (
	"sync"
	"sync/atomic"

	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/metrics"
)

// mailboxSize bounds each subscriber's outbound queue. When it is full the
// oldest queued message is discarded so publishers never block.
const mailboxSize = 64

// Transport is the connection surface the hub writes to. *websocket.Conn
// satisfies it; tests use an in-memory implementation.
type Transport interface {
	WriteJSON(v any) error
	Close() error
}

type subscription struct {
	channel string
	filters Filters
}

// Subscriber is one connected client: its subscriptions and its bounded
// mailbox. A dedicated writer goroutine drains the mailbox onto the
// transport so one slow client never stalls the hub.
type Subscriber struct {
	ID string

	hub       *Hub
	transport Transport
	logger    logging.Logger

	mu   sync.Mutex
	subs []subscription

	mailbox chan Message
	done    chan struct{}
	once    sync.Once

	dropped atomic.Int64
}

// Subscribe attaches a filtered subscription to the channel.
func (s *Subscriber) Subscribe(channel string, f Filters) {
	s.mu.Lock()
	s.subs = append(s.subs, subscription{channel: channel, filters: f})
	s.mu.Unlock()
}

// Unsubscribe removes every subscription to the channel.
func (s *Subscriber) Unsubscribe(channel string) {
	s.mu.Lock()
	kept := s.subs[:0]
	for _, sub := range s.subs {
		if sub.channel != channel {
			kept = append(kept, sub)
		}
	}
	s.subs = kept
	s.mu.Unlock()
}

// wants reports whether any subscription matches the event. First match
// wins, so an event is delivered at most once regardless of how many
// subscriptions overlap.
func (s *Subscriber) wants(ev event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.channel == ev.channel && sub.filters.matches(ev) {
			return true
		}
	}
	return false
}

// Dropped returns how many messages this subscriber has lost to
// backpressure.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// enqueue appends the message, discarding the oldest queued message when
// the mailbox is full. It never blocks.
func (s *Subscriber) enqueue(msg Message) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.mailbox <- msg:
			return
		default:
		}
		select {
		case <-s.mailbox:
			s.dropped.Add(1)
			metrics.HubMessagesDropped.Inc()
		default:
		}
	}
}

// writeLoop drains the mailbox onto the transport. A write error expires
// the subscriber.
func (s *Subscriber) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.mailbox:
			if err := s.transport.WriteJSON(msg); err != nil {
				s.logger.Debugw("write failed, expiring subscriber", "err", err)
				s.hub.Unregister(s)
				return
			}
			metrics.HubMessagesSent.WithLabelValues(msg.Type).Inc()
		}
	}
}

// close stops the writer and releases the transport. Idempotent.
func (s *Subscriber) close() {
	s.once.Do(func() {
		close(s.done)
		s.transport.Close()
	})
}
