// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/soccerserver/network"
)

// Session is one connected client. Its ID is the socket id used as the player key in rooms.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	userID     int64
	username   string
	roomID     string
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
	}
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Touch records client activity (any packet, including heartbeats).
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) RoomID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.roomID
}

func (s *Session) SetRoomID(roomID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.roomID = roomID
}

// SetUser binds an authenticated account to the session.
func (s *Session) SetUser(userID int64, username string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.userID = userID
	s.username = username
}

func (s *Session) UserID() int64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.userID
}

func (s *Session) Username() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.username
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

func (m *Manager) GetByUserID(userID int64) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.UserID() == userID {
			result = append(result, session)
		}
	}
	return result
}

// ListByRoom returns the sessions currently joined to roomID.
func (m *Manager) ListByRoom(roomID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.RoomID() == roomID {
			result = append(result, session)
		}
	}
	return result
}

// All returns every connected session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}
