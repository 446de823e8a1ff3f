package api

import (
	"context"
	"sync"
	"time"

	"dontforget/internal/bookingflow"
	"dontforget/internal/metrics"
)

type session struct {
	flow     *bookingflow.Flow
	lastSeen time.Time
}

// Sessions holds the live booking flow of every guest session and owner.
// A page load replaces the session's flow.
type Sessions struct {
	mu    sync.Mutex
	flows map[string]*session
	idle  time.Duration
	now   func() time.Time
}

func NewSessions(idle time.Duration) *Sessions {
	return &Sessions{
		flows: make(map[string]*session),
		idle:  idle,
		now:   time.Now,
	}
}

func (s *Sessions) Put(key string, flow *bookingflow.Flow) {
	s.mu.Lock()
	s.flows[key] = &session{flow: flow, lastSeen: s.now()}
	n := len(s.flows)
	s.mu.Unlock()
	metrics.SetActiveFlows(n)
}

// Get returns the session's flow and marks the session active.
func (s *Sessions) Get(key string) (*bookingflow.Flow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.flows[key]
	if !ok {
		return nil, false
	}
	sess.lastSeen = s.now()
	return sess.flow, true
}

// Sweep drops flows idle for longer than the idle timeout.
func (s *Sessions) Sweep(_ context.Context) error {
	s.mu.Lock()
	cutoff := s.now().Add(-s.idle)
	for key, sess := range s.flows {
		if sess.lastSeen.Before(cutoff) {
			delete(s.flows, key)
		}
	}
	n := len(s.flows)
	s.mu.Unlock()
	metrics.SetActiveFlows(n)
	return nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}
