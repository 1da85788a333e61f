package services

import (
	"sync"

	"github.com/lyallcooper/treescan/internal/types"
)

// Event names
const (
	EventState  = "scanner:state"
	EventStatus = "scanner:status"
)

// subscriberBuffer is the per-subscriber queue length. A subscriber that
// falls further behind loses its oldest events.
const subscriberBuffer = 64

// Event carries a full snapshot of either the state or the status
type Event struct {
	Name   string
	State  *types.ScannerState
	Status *types.ScannerStatus
}

// Payload returns the snapshot carried by the event
func (e Event) Payload() any {
	if e.Name == EventState {
		return e.State
	}
	return e.Status
}

// subscriber wraps a channel with safe close handling
type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (sub *subscriber) close() {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// send queues ev without blocking, dropping the oldest queued event when the
// buffer is full
func (sub *subscriber) send(ev Event) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	for {
		select {
		case sub.ch <- ev:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// Subscribe returns a channel receiving every state and status snapshot
// committed from now on. Call LoadScannerState for the current values.
func (s *Scanner) Subscribe() <-chan Event {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	sub := &subscriber{
		ch: make(chan Event, subscriberBuffer),
	}
	s.subscribers = append(s.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscriber and closes its channel
func (s *Scanner) Unsubscribe(ch <-chan Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub.ch == ch {
			// Remove from slice first, then close safely
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			sub.close()
			break
		}
	}
}

// broadcast sends ev to all subscribers. It is called with the scanner lock
// held so every subscriber sees events in commit order.
func (s *Scanner) broadcast(ev Event) {
	s.subMu.RLock()
	subs := make([]*subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, sub := range subs {
		sub.send(ev)
	}
}

// closeSubscribers closes all subscriber channels
func (s *Scanner) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, sub := range s.subscribers {
		sub.close()
	}
	s.subscribers = nil
}
