package session

import (
	"sync"

	"github.com/igorgomez/medidascorporais/internal/identity"
)

// subscriber delivers queued updates to one listener on its own goroutine so
// a slow listener never blocks the gate.
type subscriber struct {
	fn    Listener
	mu    sync.Mutex
	queue []*identity.User
	wake  chan struct{}
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newSubscriber(fn Listener) *subscriber {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(u *identity.User) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case <-s.wake:
			for {
				s.mu.Lock()
				if len(s.queue) == 0 {
					s.mu.Unlock()
					break
				}
				next := s.queue[0]
				s.queue = s.queue[1:]
				s.mu.Unlock()
				s.fn(next)
			}
		}
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
