package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
)

// Session is the server-side state of one connection's page collection.
// Callers hold the lock (Lock/Unlock) around every read-modify-write so
// that page mutations and the disconnect purge never interleave.
type Session struct {
	mu         sync.Mutex
	key        string
	stagingID  uuid.UUID
	pageOrder  []uuid.UUID
	terminated bool
}

func New(key string) *Session {
	return &Session{
		key:       key,
		stagingID: uuid.New(),
		pageOrder: make([]uuid.UUID, 0),
	}
}

func (s *Session) Key() string {
	return s.key
}

func (s *Session) StagingID() uuid.UUID {
	return s.stagingID
}

func (s *Session) Lock() {
	s.mu.Lock()
}

func (s *Session) Unlock() {
	s.mu.Unlock()
}

// The methods below require the session lock.

func (s *Session) Terminated() bool {
	return s.terminated
}

// Terminate makes the session absorbing; it reports whether this call
// did the transition.
func (s *Session) Terminate() bool {
	if s.terminated {
		return false
	}
	s.terminated = true
	return true
}

// CheckActive fails with ProtocolError once the session has ended.
func (s *Session) CheckActive(op string) error {
	if s.terminated {
		return fault.New(fault.KindProtocol, op, "session %s already terminated", s.key)
	}
	return nil
}

func (s *Session) Len() int {
	return len(s.pageOrder)
}

// Pages returns a copy of pageOrder.
func (s *Session) Pages() []uuid.UUID {
	out := make([]uuid.UUID, len(s.pageOrder))
	copy(out, s.pageOrder)
	return out
}

func (s *Session) AppendPage(pageID uuid.UUID) {
	s.pageOrder = append(s.pageOrder, pageID)
}

// PageAt validates index against pageOrder.
func (s *Session) PageAt(index int) (uuid.UUID, error) {
	if index < 0 || index >= len(s.pageOrder) {
		return uuid.Nil, fault.New(fault.KindIndexOutOfRange, "delete", "index %d out of range [0, %d)", index, len(s.pageOrder))
	}
	return s.pageOrder[index], nil
}

// RemoveAt drops the entry at index, shifting later pages down.
func (s *Session) RemoveAt(index int) (uuid.UUID, error) {
	pageID, err := s.PageAt(index)
	if err != nil {
		return uuid.Nil, err
	}
	s.pageOrder = append(s.pageOrder[:index], s.pageOrder[index+1:]...)
	return pageID, nil
}
