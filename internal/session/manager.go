package session

import (
	"errors"
	"sync"
)

var ErrAttemptActive = errors.New("user already has an active session for this exam")

// Manager owns every live attempt session in the process. Sessions are keyed
// by attempt ID; a secondary index prevents one user holding two concurrent
// sessions for the same exam.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUser   map[userExamKey]string
}

type userExamKey struct {
	userID uint
	examID uint
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byUser:   make(map[userExamKey]string),
	}
}

// Register adds a started session. Fails without side effects if the user
// already has one in flight for the exam.
func (m *Manager) Register(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userExamKey{userID: s.UserID(), examID: s.ExamID()}
	if _, ok := m.byUser[key]; ok {
		return ErrAttemptActive
	}
	m.sessions[s.AttemptID()] = s
	m.byUser[key] = s.AttemptID()
	return nil
}

func (m *Manager) Get(attemptID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[attemptID]
	return s, ok
}

// GetByUser resolves the user's live session for an exam, if any.
func (m *Manager) GetByUser(userID, examID uint) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byUser[userExamKey{userID: userID, examID: examID}]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// Remove tears a session down and drops it from both indexes. Safe to call
// for unknown IDs.
func (m *Manager) Remove(attemptID string) {
	m.mu.Lock()
	s, ok := m.sessions[attemptID]
	if ok {
		delete(m.sessions, attemptID)
		delete(m.byUser, userExamKey{userID: s.UserID(), examID: s.ExamID()})
	}
	m.mu.Unlock()

	if ok {
		s.Close()
	}
}

// CloseAll shuts every live session down, used on server drain.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.byUser = make(map[userExamKey]string)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Snapshot returns the live sessions at this instant, for sweeps and drains.
func (m *Manager) Snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
