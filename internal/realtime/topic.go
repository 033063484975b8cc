package realtime

import "sync"

// Listener receives change events for a subscribed topic.
type Listener interface {
	OnChange(ev ChangeEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev ChangeEvent)

// OnChange calls f(ev).
func (f ListenerFunc) OnChange(ev ChangeEvent) {
	f(ev)
}

// Subject is the observer side of a topic: a set of listeners notified
// together.
type Subject interface {
	Subscribe(l Listener) uint64
	Unsubscribe(id uint64) bool
	Notify(ev ChangeEvent)
	Len() int
}

// ListenerSet is a Subject that delivers through a Dispatcher.
//
// Each listener gets its own dispatched job, so one listener panicking
// does not prevent delivery to the others. A listener removed before its
// job runs is skipped.
type ListenerSet struct {
	dispatcher Dispatcher

	mu    sync.Mutex
	next  uint64
	order []uint64
	byID  map[uint64]Listener
}

var _ Subject = (*ListenerSet)(nil)

// NewListenerSet creates an empty set delivering through d.
func NewListenerSet(d Dispatcher) *ListenerSet {
	return &ListenerSet{dispatcher: d, byID: make(map[uint64]Listener)}
}

// Subscribe adds l and returns its registration id.
func (s *ListenerSet) Subscribe(l Listener) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.byID[s.next] = l
	s.order = append(s.order, s.next)
	return s.next
}

// Unsubscribe removes a registration. Returns false if it was not present.
func (s *ListenerSet) Unsubscribe(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	delete(s.byID, id)
	for i, cand := range s.order {
		if cand == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Notify dispatches ev to every current listener in registration order.
func (s *ListenerSet) Notify(ev ChangeEvent) {
	s.mu.Lock()
	ids := make([]uint64, len(s.order))
	copy(ids, s.order)
	s.mu.Unlock()

	for _, id := range ids {
		s.dispatcher.Dispatch(func() {
			s.mu.Lock()
			l, ok := s.byID[id]
			s.mu.Unlock()
			if ok {
				l.OnChange(ev)
			}
		})
	}
}

// Len returns the number of registered listeners.
func (s *ListenerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
