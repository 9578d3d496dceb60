package webserver

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kbcanvas/kbcanvas/internal/domain/canvas"
	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
)

var errSessionNotFound = errors.New("session not found")

// Session is one browser's canvas: its image flow and its recommendation flow
type Session struct {
	ID              string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Image           *canvas.ImageFlow
	Recommendations *canvas.RecommendationFlow
}

// SessionStore manages UI sessions in memory
type SessionStore struct {
	sessions   map[string]*Session
	mu         sync.RWMutex
	cookieName string
	ttl        time.Duration
	secure     bool
	onExpire   func(*Session)
	now        func() time.Time
	logger     *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSessionStore creates a new session store
func NewSessionStore(cfg config.SessionConfig, logger *zap.Logger) *SessionStore {
	return &SessionStore{
		sessions:   make(map[string]*Session),
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		now:        time.Now,
		logger:     logger.Named("sessions"),
		stop:       make(chan struct{}),
	}
}

// OnExpire registers a hook run for every session that is removed
func (s *SessionStore) OnExpire(fn func(*Session)) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

// Get retrieves the session named by the request cookie
func (s *SessionStore) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	session, exists := s.sessions[cookie.Value]
	s.mu.RUnlock()

	if !exists {
		return nil, errSessionNotFound
	}

	if s.now().After(session.ExpiresAt) {
		s.Delete(session.ID)
		return nil, errSessionNotFound
	}

	return session, nil
}

// New creates a new session with empty flows
func (s *SessionStore) New() *Session {
	now := s.now()
	session := &Session{
		ID:              generateSessionID(),
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.ttl),
		Image:           canvas.NewImageFlow(),
		Recommendations: canvas.NewRecommendationFlow(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Save sets the session cookie
func (s *SessionStore) Save(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
		MaxAge:   int(session.ExpiresAt.Sub(s.now()).Seconds()),
	})
}

// Delete removes a session and runs the expiry hook
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	hook := s.onExpire
	s.mu.Unlock()

	if ok && hook != nil {
		hook(session)
	}
}

// Len returns the number of live sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions and returns how many were dropped
func (s *SessionStore) Cleanup() int {
	now := s.now()

	s.mu.RLock()
	var expired []string
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.Delete(id)
		s.logger.Debug("Cleaned up expired session", zap.String("session_id", id))
	}
	return len(expired)
}

// Start removes expired sessions periodically until Stop is called
func (s *SessionStore) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop ends the cleanup loop
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// generateSessionID generates a random session ID
func generateSessionID() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
