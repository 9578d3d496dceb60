package webserver

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kbcanvas/kbcanvas/internal/infrastructure/config"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	return NewSessionStore(config.SessionConfig{
		CookieName: "kbcanvas-session",
		TTL:        time.Hour,
		Secure:     true,
	}, zaptest.NewLogger(t))
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	store := newTestSessionStore(t)
	session := store.New()

	rec := httptest.NewRecorder()
	store.Save(rec, session)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "kbcanvas-session", cookies[0].Name)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	got, err := store.Get(req)
	require.NoError(t, err)
	assert.Same(t, session, got)
	assert.NotNil(t, got.Image)
	assert.NotNil(t, got.Recommendations)
}

func TestSessionStore_GetWithoutCookie(t *testing.T) {
	store := newTestSessionStore(t)

	_, err := store.Get(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.ErrorIs(t, err, http.ErrNoCookie)
}

func TestSessionStore_GetUnknownSession(t *testing.T) {
	store := newTestSessionStore(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "kbcanvas-session", Value: "forged"})

	_, err := store.Get(req)
	assert.ErrorIs(t, err, errSessionNotFound)
}

func TestSessionStore_ExpiredSessionRunsHook(t *testing.T) {
	store := newTestSessionStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	var expired atomic.Int32
	store.OnExpire(func(*Session) { expired.Add(1) })

	session := store.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "kbcanvas-session", Value: session.ID})

	now = now.Add(2 * time.Hour)
	_, err := store.Get(req)

	assert.ErrorIs(t, err, errSessionNotFound)
	assert.Equal(t, int32(1), expired.Load())
	assert.Equal(t, 0, store.Len())
}

func TestSessionStore_Cleanup(t *testing.T) {
	store := newTestSessionStore(t)
	now := time.Now()
	store.now = func() time.Time { return now }

	var expired atomic.Int32
	store.OnExpire(func(*Session) { expired.Add(1) })

	store.New()
	store.New()
	now = now.Add(30 * time.Minute)
	fresh := store.New()

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 2, store.Cleanup())
	assert.Equal(t, int32(2), expired.Load())
	assert.Equal(t, 1, store.Len())

	store.Delete(fresh.ID)
	store.Delete(fresh.ID)
	assert.Equal(t, int32(3), expired.Load())
}

func TestSessionStore_StartStop(t *testing.T) {
	store := newTestSessionStore(t)
	store.ttl = -time.Second
	store.New()

	store.Start(10 * time.Millisecond)
	defer store.Stop()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 10*time.Millisecond)
	store.Stop()
}
