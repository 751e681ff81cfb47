package app

import (
	"context"
	"sync"

	"github.com/dkeye/CallRelay/internal/core"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Session *core.Session
	Cancel  context.CancelFunc
}

// Registry maps session identities to live connections.
// Every method is a single critical section, so a lookup never observes a
// half-applied register or remove from another connection's goroutine.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

// Register stores sess under its identity. An existing entry is replaced.
func (r *Registry) Register(sess *core.Session, cancel context.CancelFunc) {
	sid := sess.ID()
	r.mu.Lock()
	_, replaced := r.sessions[sid]
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Bool("replaced", replaced).Msg("registered session")
}

func (r *Registry) Lookup(sid core.SessionID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Remove(sid core.SessionID) {
	r.mu.Lock()
	delete(r.sessions, sid)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed session")
}

// Release removes sid only while it still points at sess. A connection that
// was replaced under the same identity must not evict its successor.
func (r *Registry) Release(sid core.SessionID, sess *core.Session) bool {
	r.mu.Lock()
	e, ok := r.sessions[sid]
	if !ok || e.Session != sess {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, sid)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("released session")
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Cancel tears down the connection behind sid. The transport's own
// disconnect path performs the removal.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

// CancelAll is used on shutdown.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(r.sessions))
	for _, e := range r.sessions {
		if e.Cancel != nil {
			cancels = append(cancels, e.Cancel)
		}
	}
	r.mu.RUnlock()
	for _, cancel := range cancels {
		cancel()
	}
	log.Info().Str("module", "app.registry").Int("count", len(cancels)).Msg("canceled all sessions")
}
