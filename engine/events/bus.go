package events

import "sync"

// Bus fans events out to any number of subscribers. Publish never blocks:
// each subscriber has its own unbounded queue drained by a pump goroutine.
type Bus struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*subscription]struct{})}
}

type subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool // no more events will be queued
	done   chan struct{}
	out    chan Event
}

// Subscribe returns a channel receiving every event published from now on,
// and a cancel function. The channel is closed after Close has been called
// and the queue drained, or immediately on cancel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	s := &subscription{done: make(chan struct{}), out: make(chan Event)}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		s.closed = true
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.pump()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, s)
			b.mu.Unlock()
			close(s.done)
			s.mu.Lock()
			s.closed = true
			s.queue = nil
			s.cond.Signal()
			s.mu.Unlock()
		})
	}
	return s.out, cancel
}

// Publish queues ev for every subscriber.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		s.mu.Lock()
		s.queue = append(s.queue, ev)
		s.cond.Signal()
		s.mu.Unlock()
	}
}

// Close stops accepting events. Subscribers still receive what was queued.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.mu.Lock()
		s.closed = true
		s.cond.Signal()
		s.mu.Unlock()
	}
	b.subs = nil
}

func (s *subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}
	}
}
