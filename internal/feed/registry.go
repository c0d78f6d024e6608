// Package feed tracks live observers and fans ingestion events out to them.
//
// Delivery is best effort: the persisted store is the system of record, the
// feed is advisory. A failed send is treated as proof of disconnection and
// removes the subscriber; there are no retries and no liveness probes.
package feed

import (
	"sync"

	"go.uber.org/zap"

	"github.com/waio/crawlwatch/internal/metrics"
	"github.com/waio/crawlwatch/internal/visit"
)

// TypeVisitUpdate is the message type for one persisted visit fact.
const TypeVisitUpdate = "VISIT_UPDATE"

// Message is the envelope delivered to each subscriber, one per ingested and
// successfully persisted record, in persistence order.
type Message struct {
	Type string       `json:"type"`
	Data visit.Record `json:"data"`
}

// Subscriber is one live connection. Send must be safe for concurrent use
// and return an error when the connection is no longer usable.
type Subscriber interface {
	Send(msg Message) error
	Close() error
}

// Registry owns the set of live subscribers. No other component may mutate
// membership; a subscriber is Connected from Register until the first
// explicit Unregister or failed delivery, and is never reused after that.
type Registry struct {
	mu     sync.RWMutex
	subs   map[Subscriber]struct{}
	logger *zap.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		subs:   make(map[Subscriber]struct{}),
		logger: logger,
	}
}

// Register adds the subscriber; registering an already present subscriber is
// a no-op.
func (r *Registry) Register(s Subscriber) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.subs[s] = struct{}{}
	n := len(r.subs)
	r.mu.Unlock()
	metrics.SetFeedSubscribers(n)
	r.logger.Debug("feed subscriber connected", zap.Int("total", n))
}

// Unregister removes the subscriber; removing an absent subscriber is a
// no-op.
func (r *Registry) Unregister(s Subscriber) {
	if s == nil {
		return
	}
	r.mu.Lock()
	_, present := r.subs[s]
	delete(r.subs, s)
	n := len(r.subs)
	r.mu.Unlock()
	if !present {
		return
	}
	metrics.SetFeedSubscribers(n)
	r.logger.Debug("feed subscriber disconnected", zap.Int("total", n))
}

// Len returns the current number of live subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// CloseAll disconnects every subscriber. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	targets := make([]Subscriber, 0, len(r.subs))
	for s := range r.subs {
		targets = append(targets, s)
	}
	r.subs = make(map[Subscriber]struct{})
	r.mu.Unlock()

	for _, s := range targets {
		_ = s.Close()
	}
	metrics.SetFeedSubscribers(0)
}

// Broadcast delivers the record to every subscriber registered at call time.
// Subscribers registered while the broadcast is in flight do not receive the
// message. Any subscriber whose delivery fails is unregistered and closed.
func (r *Registry) Broadcast(rec visit.Record) {
	msg := Message{Type: TypeVisitUpdate, Data: rec}

	r.mu.RLock()
	targets := make([]Subscriber, 0, len(r.subs))
	for s := range r.subs {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := s.Send(msg); err != nil {
			metrics.ObserveFeedSendFailure()
			r.logger.Debug("feed delivery failed, dropping subscriber", zap.Error(err))
			r.Unregister(s)
			_ = s.Close()
		}
	}
}
