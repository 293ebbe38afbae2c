package bridge

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateOpen is set when the push channel is established.
	StateOpen State = iota
	// StateClosed is terminal; the identifier is never valid again.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session binds one client push channel to the handler that accepts that
// client's message submissions.
type Session struct {
	id        string
	transport http.Handler
	openedAt  time.Time

	mu    sync.Mutex
	state State
	done  chan struct{}
}

func newSession(id string, transport http.Handler) *Session {
	return &Session{
		id:        id,
		transport: transport,
		openedAt:  time.Now(),
		state:     StateOpen,
		done:      make(chan struct{}),
	}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string {
	return s.id
}

// OpenedAt returns when the push channel was established.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the session transitions to StateClosed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// close moves the session to StateClosed. It reports whether this call made
// the transition.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.state = StateClosed
	close(s.done)
	return true
}

// ServeHTTP hands a message submission to the session's transport.
func (s *Session) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.transport.ServeHTTP(w, r)
}

// Table indexes open sessions by identifier.
type Table struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewTable creates an empty session table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// add registers an open session. Identifiers must be unique.
func (t *Table) add(s *Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[s.id]; exists {
		return fmt.Errorf("session %s already registered", s.id)
	}
	t.sessions[s.id] = s
	return nil
}

// Lookup returns the open session with id.
func (t *Table) Lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	t.mu.RLock()
	s, ok := t.sessions[id]
	t.mu.RUnlock()
	if !ok || s.State() != StateOpen {
		return nil, false
	}
	return s, true
}

// Close closes the session with id and removes it from the table. It
// reports whether a session was removed.
func (t *Table) Close(id string) bool {
	t.mu.Lock()
	s, ok := t.sessions[id]
	delete(t.sessions, id)
	t.mu.Unlock()
	if !ok {
		return false
	}
	s.close()
	return true
}

// CloseAll closes every session, used on shutdown so that open push channels
// return.
func (t *Table) CloseAll() int {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = make(map[string]*Session)
	t.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	return len(sessions)
}

// IDs returns the identifiers of all open sessions.
func (t *Table) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of open sessions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
