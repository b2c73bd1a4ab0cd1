package instance

import "sync"

const eventBufferSize = 16

// Subscription provides the event stream of one observer.
type Subscription struct {
	Events <-chan Event
	Done   <-chan struct{}

	eventCh chan Event
	doneCh  chan struct{}
}

func newSubscription() *Subscription {
	s := &Subscription{
		eventCh: make(chan Event, eventBufferSize),
		doneCh:  make(chan struct{}),
	}
	s.Events = s.eventCh
	s.Done = s.doneCh
	return s
}

// send delivers an event without blocking.
func (s *Subscription) send(e Event) {
	select {
	case s.eventCh <- e:
	default:
		// Drop if buffer full
	}
}

func (s *Subscription) close() {
	close(s.doneCh)
}

// Observers is a list of subscriptions sharing one event source.
// It is safe for concurrent use.
type Observers struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Subscribe registers a new subscription. Subscribing after Close returns
// a subscription whose Done channel is already closed.
func (o *Observers) Subscribe() *Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	sub := newSubscription()
	if o.closed {
		sub.close()
		return sub
	}
	o.subs = append(o.subs, sub)
	return sub
}

// Publish sends e to every subscription (non-blocking).
func (o *Observers) Publish(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, sub := range o.subs {
		sub.send(e)
	}
}

// Close signals every subscription and drops them.
func (o *Observers) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for _, sub := range o.subs {
		sub.close()
	}
	o.subs = nil
}

// Len returns the number of live subscriptions.
func (o *Observers) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
