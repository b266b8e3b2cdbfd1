package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relab/arbmon/logging"
	"github.com/relab/arbmon/metrics"
	"github.com/relab/arbmon/store"
)

// ErrAtCapacity is returned when the subscriber limit is reached; the
// transport should be closed with close code 1008.
var ErrAtCapacity = errors.New("hub at subscriber capacity")

const (
	// DefaultMaxSubscribers bounds concurrent subscribers.
	DefaultMaxSubscribers = 100

	heartbeatInterval = 30 * time.Second
	publishQueueSize  = 1024
)

// Hub routes opportunity and transaction events to filtered subscribers.
// Producers enqueue onto two internal queues; Run drains them so publishers
// never wait on subscriber I/O.
type Hub struct {
	maxSubscribers int
	logger         logging.Logger

	mu   sync.RWMutex
	subs map[string]*Subscriber

	opportunities chan event
	transactions  chan event

	published atomic.Int64
	expired   atomic.Int64
}

// New builds a hub. maxSubscribers <= 0 selects the default capacity.
func New(maxSubscribers int) *Hub {
	if maxSubscribers <= 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &Hub{
		maxSubscribers: maxSubscribers,
		logger:         logging.New("hub"),
		subs:           make(map[string]*Subscriber),
		opportunities:  make(chan event, publishQueueSize),
		transactions:   make(chan event, publishQueueSize),
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Register admits a new subscriber and starts its writer, or returns
// ErrAtCapacity. The connected greeting is queued before any event can
// reach the new subscriber.
func (h *Hub) Register(transport Transport) (*Subscriber, error) {
	h.mu.Lock()
	if len(h.subs) >= h.maxSubscribers {
		h.mu.Unlock()
		h.logger.Warnw("subscriber rejected at capacity", "capacity", h.maxSubscribers)
		return nil, ErrAtCapacity
	}
	sub := &Subscriber{
		ID:        uuid.NewString(),
		hub:       h,
		transport: transport,
		mailbox:   make(chan Message, mailboxSize),
		done:      make(chan struct{}),
	}
	sub.logger = h.logger.With("connection_id", sub.ID)
	h.subs[sub.ID] = sub
	count := len(h.subs)
	h.mu.Unlock()

	metrics.HubSubscribers.Set(float64(count))
	sub.enqueue(Message{Type: TypeConnected, ConnectionID: sub.ID})
	go sub.writeLoop()

	h.logger.Infow("subscriber connected", "connection_id", sub.ID, "total", count)
	return sub, nil
}

// Unregister expires the subscriber, draining its mailbox and releasing the
// transport. Safe to call more than once.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	_, present := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	count := len(h.subs)
	h.mu.Unlock()

	sub.close()
	if present {
		h.expired.Add(1)
		metrics.HubSubscribers.Set(float64(count))
		h.logger.Infow("subscriber disconnected", "connection_id", sub.ID, "remaining", count)
	}
}

// PublishOpportunity queues an opportunity for fan-out. Never blocks; when
// the producer queue is full the event is dropped and counted.
func (h *Hub) PublishOpportunity(opp *store.Opportunity) {
	h.publish(h.opportunities, opportunityEvent(opp))
}

// PublishTransaction queues an arbitrage transaction for fan-out.
func (h *Hub) PublishTransaction(tx *store.ArbitrageTransaction) {
	h.publish(h.transactions, transactionEvent(tx))
}

func (h *Hub) publish(queue chan event, ev event) {
	select {
	case queue <- ev:
		h.published.Add(1)
	default:
		metrics.HubMessagesDropped.Inc()
		h.logger.Warnw("publish queue full, event dropped", "channel", ev.channel)
	}
}

// Run drains the producer queues and pushes heartbeats until ctx is
// cancelled, then expires every subscriber.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev := <-h.opportunities:
			h.route(ev, Message{Type: TypeOpportunity, Timestamp: timestamp(), Data: ev.payload})
		case ev := <-h.transactions:
			h.route(ev, Message{Type: TypeTransaction, Timestamp: timestamp(), Data: ev.payload})
		case <-heartbeat.C:
			h.broadcast(Message{Type: TypeHeartbeat, Timestamp: timestamp()})
		}
	}
}

// route delivers the event to every subscriber with a matching
// subscription, at most once each.
func (h *Hub) route(ev event, msg Message) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.wants(ev) {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(msg)
	}
}

func (h *Hub) broadcast(msg Message) {
	h.mu.RLock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(msg)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	metrics.HubSubscribers.Set(0)
	h.logger.Infof("hub stopped")
}

// HandleMessage applies one inbound control message from the subscriber,
// queueing the reply per the message grammar.
func (h *Hub) HandleMessage(sub *Subscriber, msg Message) {
	switch msg.Type {
	case TypeSubscribe:
		if msg.Channel != ChannelOpportunities && msg.Channel != ChannelTransactions {
			sub.enqueue(Message{Type: TypeError, Message: "unknown channel: " + msg.Channel})
			return
		}
		var f Filters
		if msg.Filters != nil {
			f = *msg.Filters
		}
		sub.Subscribe(msg.Channel, f)
		sub.enqueue(Message{Type: TypeSubscribed, Channel: msg.Channel, Filters: msg.Filters})
	case TypeUnsubscribe:
		if msg.Channel == "" {
			sub.enqueue(Message{Type: TypeError, Message: "channel is required for unsubscribe"})
			return
		}
		sub.Unsubscribe(msg.Channel)
		sub.enqueue(Message{Type: TypeUnsubscribed, Channel: msg.Channel})
	case TypePing:
		sub.enqueue(Message{Type: TypePong, Timestamp: timestamp()})
	default:
		sub.enqueue(Message{Type: TypeError, Message: "unknown message type: " + msg.Type})
	}
}

// Stats is a point-in-time view of hub counters for the metrics surface.
type Stats struct {
	Subscribers int
	Published   int64
	Expired     int64
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Subscribers: h.SubscriberCount(),
		Published:   h.published.Load(),
		Expired:     h.expired.Load(),
	}
}
