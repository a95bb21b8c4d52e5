// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/crosskey/network"
)

// ErrSendQueueFull is returned when a peer stops draining its outbound queue.
// The session is closed; the reader then runs the ordinary leave handling.
var ErrSendQueueFull = errors.New("send queue full")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("session closed")

// Session 对应一条 WebSocket 连接, ID 即 connectionId
type Session struct {
	ID         string
	Conn       network.Connection
	RemoteIP   string
	CreatedAt  time.Time
	lastActive time.Time
	mutex      sync.RWMutex

	outbox    chan network.Message // nil: Send writes synchronously
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		done:       make(chan struct{}),
	}
}

// Start 启动写协程; 之后 Send 只入队不阻塞. Must be called before the
// session is shared.
func (s *Session) Start(queueSize int) {
	s.outbox = make(chan network.Message, queueSize)
	go s.writeLoop()
}

func (s *Session) writeLoop() {
	for {
		select {
		case msg := <-s.outbox:
			if err := s.Conn.Send(msg); err != nil {
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send delivers msg in order. Once started it never blocks on the network.
func (s *Session) Send(msg network.Message) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	if s.outbox == nil {
		return s.Conn.Send(msg)
	}
	select {
	case s.outbox <- msg:
		return nil
	default:
		_ = s.Close()
		return ErrSendQueueFull
	}
}

func (s *Session) Ping() error {
	return s.Conn.Ping()
}

// Touch records inbound activity.
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

func (s *Session) GetID() string {
	return s.ID
}

// Close stops the writer and closes the connection. Safe to call repeatedly.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.Conn.Close()
	})
	return err
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

// All returns a snapshot of the live sessions.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}
