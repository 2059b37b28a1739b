package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/xhad/ragcore/internal/models"
)

// State of a consumer side session.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateAborted
	StateErrored
)

func (s State) String() string {
	return [...]string{"idle", "streaming", "completed", "aborted", "errored"}[s]
}

// Message is the finalized answer of a completed session.
type Message struct {
	SessionID string
	Query     string
	Content   string
	Sources   []models.Source
}

// StreamError is returned by Deliver when the producer ended the session
// with an error event.
type StreamError struct {
	SessionID string
	Message   string
}

func (e *StreamError) Error() string {
	return "stream " + e.SessionID + ": " + e.Message
}

type session struct {
	id       string
	query    string
	buf      strings.Builder
	sources  []models.Source
	cancel   context.CancelFunc
	terminal atomic.Bool
}

// markTerminal fires at most once per session.
func (s *session) markTerminal() bool {
	return s.terminal.CompareAndSwap(false, true)
}

// Manager owns the single active session of one consumer. Events for any
// other session id are dropped.
type Manager struct {
	mu     sync.Mutex
	active *session
	state  State
}

func NewManager() *Manager {
	return &Manager{}
}

// Begin starts a new session. It fails with ErrStreamActive while another
// session is still streaming; requests are never queued.
func (m *Manager) Begin(query string, cancel context.CancelFunc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return "", models.ErrStreamActive
	}

	s := &session{
		id:     uuid.NewString(),
		query:  query,
		cancel: cancel,
	}
	m.active = s
	m.state = StateStreaming
	return s.id, nil
}

// Deliver applies one event. It returns the finalized message when the event
// completes the active session and a *StreamError when it fails it. Events
// for a stale session, or arriving after the terminal one, are no-ops.
func (m *Manager) Deliver(ev Event) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.active
	if s == nil || ev.SessionID != s.id || s.terminal.Load() {
		return nil, nil
	}

	switch ev.Kind {
	case KindDelta:
		s.buf.WriteString(ev.Content)
	case KindSources:
		s.sources = ev.Sources
	case KindError:
		if !s.markTerminal() {
			return nil, nil
		}
		m.reset(StateErrored)
		return nil, &StreamError{SessionID: s.id, Message: ev.Error}
	case KindDone:
		if !s.markTerminal() {
			return nil, nil
		}
		msg := &Message{
			SessionID: s.id,
			Query:     s.query,
			Content:   s.buf.String(),
			Sources:   s.sources,
		}
		m.reset(StateCompleted)
		return msg, nil
	}
	return nil, nil
}

// Cancel aborts the active session without waiting for the producer. Local
// state is cleared before Cancel returns.
func (m *Manager) Cancel() {
	m.mu.Lock()
	s := m.active
	if s == nil {
		m.mu.Unlock()
		return
	}
	s.markTerminal()
	m.reset(StateAborted)
	m.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// Fail ends session id with a local error, e.g. a broken transport. It is a
// no-op if id is not the active session.
func (m *Manager) Fail(id string, err error) error {
	msg := "stream failed"
	if err != nil {
		msg = err.Error()
	}
	_, serr := m.Deliver(Event{Kind: KindError, SessionID: id, Error: msg})
	return serr
}

func (m *Manager) reset(state State) {
	m.active = nil
	m.state = state
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveID returns the id of the streaming session, or "".
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}

// Content returns the text accumulated so far by the active session.
func (m *Manager) Content() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.buf.String()
}
