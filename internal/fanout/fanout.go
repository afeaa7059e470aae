// Package fanout delivers published answer chunks to the live subscribers of
// exactly one answer id. Matching is exact, never wildcard. Because each
// answer id has a single logical writer, delivery order per subscriber equals
// publish order without sequence numbers.
package fanout

import (
	"sync"

	"tenant-assistant/internal/domain"
)

// subscriberBuffer bounds how far a slow subscriber may fall behind before it
// is disconnected rather than allowed to stall the writer.
const subscriberBuffer = 64

type subscriber struct {
	ch     chan domain.AnswerChunk
	closed bool
}

// Registry tracks active subscriptions keyed by answer id.
type Registry struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a stream for the given answer id. The returned channel
// is closed after a terminal chunk is delivered or when cancel is called.
// Cancel is idempotent and releases the registration, so a disconnected
// caller never lingers as a fanout target.
func (r *Registry) Subscribe(answerID string) (<-chan domain.AnswerChunk, func()) {
	sub := &subscriber{ch: make(chan domain.AnswerChunk, subscriberBuffer)}

	r.mu.Lock()
	set, ok := r.subs[answerID]
	if !ok {
		set = make(map[*subscriber]struct{})
		r.subs[answerID] = set
	}
	set[sub] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.drop(answerID, sub)
	}
	return sub.ch, cancel
}

// Publish delivers the chunk to every subscriber whose answer id matches
// exactly. A terminal chunk closes and unregisters all matching streams.
// Subscribers that cannot keep up are disconnected instead of blocking the
// writer.
func (r *Registry) Publish(chunk domain.AnswerChunk) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[chunk.AnswerID]
	if !ok {
		return
	}
	for sub := range set {
		select {
		case sub.ch <- chunk:
		default:
			r.drop(chunk.AnswerID, sub)
			continue
		}
		if chunk.Terminal() {
			r.drop(chunk.AnswerID, sub)
		}
	}
}

// SubscriberCount reports the number of active streams for an answer id.
func (r *Registry) SubscriberCount(answerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[answerID])
}

// drop removes and closes one subscriber. Caller holds r.mu.
func (r *Registry) drop(answerID string, sub *subscriber) {
	set, ok := r.subs[answerID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, answerID)
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
