package gateway

import (
	"context"
	"strings"
	"sync"
)

// roomSerializer runs submitted turns in submission order per room, with at most
// one turn per room and a bounded number of turns overall in flight.
type roomSerializer struct {
	mu       sync.Mutex
	rooms    map[string]*roomQueue
	inflight chan struct{}
	wg       sync.WaitGroup
}

type roomQueue struct {
	pending []func()
	running bool
}

func newRoomSerializer(limit int) *roomSerializer {
	if limit <= 0 {
		limit = 1
	}

	return &roomSerializer{
		rooms:    make(map[string]*roomQueue),
		inflight: make(chan struct{}, limit),
	}
}

// Submit queues fn behind earlier work for the same room. It blocks while the
// in-flight limit is reached and returns false if ctx ends first.
func (s *roomSerializer) Submit(ctx context.Context, roomID string, fn func()) bool {
	select {
	case s.inflight <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	roomID = strings.TrimSpace(roomID)

	s.mu.Lock()
	q, ok := s.rooms[roomID]
	if !ok {
		q = &roomQueue{}
		s.rooms[roomID] = q
	}
	q.pending = append(q.pending, fn)
	if q.running {
		s.mu.Unlock()
		return true
	}
	q.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(q)
	return true
}

func (s *roomSerializer) drain(q *roomQueue) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			s.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		s.mu.Unlock()

		fn()
		<-s.inflight
	}
}

// Wait blocks until every submitted turn has finished.
func (s *roomSerializer) Wait() {
	s.wg.Wait()
}

// Len reports how many rooms have been seen.
func (s *roomSerializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
