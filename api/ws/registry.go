package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager maintains the registry of all connected ViewerSessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[int64]*ViewerSession // session ID → session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[int64]*ViewerSession),
		logger:   logger,
	}
}

// Register adds a session.
func (sm *SessionManager) Register(s *ViewerSession) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.ID] = s
	sm.logger.Info("viewer session registered",
		zap.Int64("session_id", s.ID),
		zap.Int64("account_id", s.AccountID))
}

// Unregister removes the session for a session ID.
func (sm *SessionManager) Unregister(sessionID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sessionID)
	sm.logger.Info("viewer session unregistered", zap.Int64("session_id", sessionID))
}

// Get returns the session for a session ID, or nil if not found.
func (sm *SessionManager) Get(sessionID int64) *ViewerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[sessionID]
}

// Count returns the number of currently connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns a snapshot slice of all current sessions.
func (sm *SessionManager) All() []*ViewerSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*ViewerSession, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s)
	}
	return out
}

// SubscriberCount returns how many sessions hold a subscription to the given
// portal view.
func (sm *SessionManager) SubscriberCount(portalViewID int64) int {
	n := 0
	for _, s := range sm.All() {
		for _, id := range s.Subscriptions() {
			if id == portalViewID {
				n++
				break
			}
		}
	}
	return n
}

// CloseAllSessions gracefully closes all connected sessions.
func (sm *SessionManager) CloseAllSessions() {
	sessions := sm.All()
	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.CancelAllSubscriptions()
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
