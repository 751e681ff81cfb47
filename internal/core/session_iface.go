package core

import "github.com/dkeye/CallRelay/internal/domain"

// SessionID is the identity handed to a client in the yourID event.
// It equals the transport connection id.
type SessionID string

// Session binds domain.Connection and its transport endpoint.
// This is what the registry stores and routes to.
type Session struct {
	meta   *domain.Connection
	signal SignalConnection
}

func NewSession(meta *domain.Connection, signal SignalConnection) *Session {
	return &Session{meta: meta, signal: signal}
}

func (s *Session) ID() SessionID            { return SessionID(s.meta.ID) }
func (s *Session) Meta() *domain.Connection { return s.meta }
func (s *Session) Signal() SignalConnection { return s.signal }
