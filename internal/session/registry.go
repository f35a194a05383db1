// Package session tracks the page-collection session of every open connection.
package session

import (
	"sync"

	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

// Registry maps connection keys to sessions. All access goes through
// the embedded sync.Map.
type Registry struct {
	sessions sync.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Create registers a new session for key. A second join on the same
// connection is a protocol error.
func (r *Registry) Create(key string) (*Session, error) {
	s := New(key)
	if _, loaded := r.sessions.LoadOrStore(key, s); loaded {
		return nil, fault.New(fault.KindProtocol, "join", "session for %s already exists", key)
	}
	logger.InfoF("[%s] Session created, staging id %s", key, s.StagingID())
	return s, nil
}

func (r *Registry) Get(key string) (*Session, bool) {
	if value, ok := r.sessions.Load(key); ok {
		return value.(*Session), true
	}
	return nil, false
}

// MustGet fails with ProtocolError when key has no session.
func (r *Registry) MustGet(key, op string) (*Session, error) {
	s, ok := r.Get(key)
	if !ok {
		return nil, fault.New(fault.KindProtocol, op, "no session for %s, send join first", key)
	}
	return s, nil
}

// Remove unregisters key and returns the session it held.
func (r *Registry) Remove(key string) (*Session, bool) {
	value, ok := r.sessions.LoadAndDelete(key)
	if !ok {
		return nil, false
	}
	logger.InfoF("[%s] Session removed", key)
	return value.(*Session), true
}

func (r *Registry) Len() int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Range calls fn for each session until fn returns false.
func (r *Registry) Range(fn func(*Session) bool) {
	r.sessions.Range(func(_, value any) bool {
		return fn(value.(*Session))
	})
}
