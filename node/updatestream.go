package node

import (
	"sync"

	"github.com/uiuxdeveloper-io/ledgerlight/core"
)

// updateStream delivers atom updates for one subscription to its single
// consumer, in arrival order, with an unbounded producer-side buffer. This
// mirrors submissionStream's pump so the socket read loop can push into a
// full-looking channel without ever blocking or reordering events.
type updateStream struct {
	mu     sync.Mutex
	buf    []core.AtomUpdate
	out    chan core.AtomUpdate
	signal chan struct{}
	done   bool
}

func newUpdateStream() *updateStream {
	s := &updateStream{
		out:    make(chan core.AtomUpdate),
		signal: make(chan struct{}, 1),
	}
	go s.pump()
	return s
}

func (s *updateStream) push(u core.AtomUpdate) {
	s.mu.Lock()
	s.buf = append(s.buf, u)
	s.mu.Unlock()
	s.wake()
}

func (s *updateStream) finish() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.wake()
}

func (s *updateStream) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *updateStream) pump() {
	for {
		s.mu.Lock()
		if len(s.buf) == 0 {
			done := s.done
			s.mu.Unlock()
			if done {
				close(s.out)
				return
			}
			<-s.signal
			continue
		}
		next := s.buf[0]
		s.buf = s.buf[1:]
		s.mu.Unlock()
		s.out <- next
	}
}
