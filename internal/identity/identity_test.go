package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a minimal identity provider: one account, opaque tokens.
type fakeProvider struct {
	mu        sync.Mutex
	refreshes int32
	signouts  int32
	failOut   bool
	revoke    chan Event
	upgrader  websocket.Upgrader
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	fp := &fakeProvider{revoke: make(chan Event, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc(PathSignIn, func(w http.ResponseWriter, r *http.Request) {
		var req SignInRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "tech@shop.io" || req.Password != "pass1234" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Code: CodeInvalidCredentials, Message: "bad email or password"}})
			return
		}
		_ = json.NewEncoder(w).Encode(TokenResponse{UID: "u1", Email: req.Email, IDToken: "id-0", RefreshToken: "rt-1", ExpiresIn: 3600})
	})
	mux.HandleFunc(PathToken, func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "rt-1" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ErrorBody{Error: ErrorDetail{Code: CodeTokenExpired}})
			return
		}
		n := atomic.AddInt32(&fp.refreshes, 1)
		_ = json.NewEncoder(w).Encode(TokenResponse{UID: "u1", Email: "tech@shop.io",
			IDToken: "id-" + string(rune('0'+n)), RefreshToken: "rt-1", ExpiresIn: 3600})
	})
	mux.HandleFunc(PathSignOut, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fp.signouts, 1)
		fp.mu.Lock()
		fail := fp.failOut
		fp.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc(PathEvents, func(w http.ResponseWriter, r *http.Request) {
		conn, err := fp.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Event{Type: EventHello})
		select {
		case ev := <-fp.revoke:
			_ = conn.WriteJSON(ev)
		case <-r.Context().Done():
		}
		time.Sleep(100 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fp, srv
}

// recorder collects listener callbacks.
type recorder struct {
	ch chan *Session
}

func newRecorder() *recorder { return &recorder{ch: make(chan *Session, 16)} }

func (r *recorder) fn(s *Session) { r.ch <- s }

func (r *recorder) next(t *testing.T) *Session {
	t.Helper()
	select {
	case s := <-r.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session callback")
		return nil
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Save(&Session{UID: "u1", Email: "a@b.io", RefreshToken: "rt", IDToken: "secret"}))
	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	got, err = s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "rt", got.RefreshToken)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	got, err = s.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewStoreDefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/repairdesk/identity.json", NewStore("").Path())
}

func TestStartWithoutSavedSessionEmitsNil(t *testing.T) {
	_, srv := newFakeProvider(t)
	c := NewClient(Options{BaseURL: srv.URL, Store: NewStore(t.TempDir())})
	defer c.Close()

	rec := newRecorder()
	c.OnSessionChange(rec.fn)
	require.NoError(t, c.Start(context.Background()))
	assert.Nil(t, rec.next(t))
}

func TestSignInNotifiesAndPersists(t *testing.T) {
	_, srv := newFakeProvider(t)
	store := NewStore(t.TempDir())
	c := NewClient(Options{BaseURL: srv.URL, Store: store})
	defer c.Close()

	rec := newRecorder()
	c.OnSessionChange(rec.fn)
	require.NoError(t, c.Start(context.Background()))
	assert.Nil(t, rec.next(t))

	s, err := c.SignInWithPassword(context.Background(), "tech@shop.io", "pass1234")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UID)

	got := rec.next(t)
	require.NotNil(t, got)
	assert.Equal(t, "id-0", got.IDToken)

	saved, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "rt-1", saved.RefreshToken)
}

func TestSignInInvalidCredentials(t *testing.T) {
	_, srv := newFakeProvider(t)
	c := NewClient(Options{BaseURL: srv.URL})
	defer c.Close()

	_, err := c.SignInWithPassword(context.Background(), "tech@shop.io", "wrong")
	require.Error(t, err)
	assert.True(t, HasCode(err, CodeInvalidCredentials))
	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, http.StatusBadRequest, ie.StatusCode)
	assert.Nil(t, c.Current())
}

func TestSignInUnreachable(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
	defer c.Close()

	_, err := c.SignInWithPassword(context.Background(), "a@b.io", "x")
	assert.True(t, HasCode(err, CodeUnavailable))
}

func TestStartRestoresSavedSession(t *testing.T) {
	_, srv := newFakeProvider(t)
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(&Session{UID: "u1", RefreshToken: "rt-1"}))

	c := NewClient(Options{BaseURL: srv.URL, Store: store})
	defer c.Close()
	rec := newRecorder()
	c.OnSessionChange(rec.fn)
	require.NoError(t, c.Start(context.Background()))

	got := rec.next(t)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.IDToken)
}

func TestStartDropsRejectedSavedSession(t *testing.T) {
	_, srv := newFakeProvider(t)
	store := NewStore(t.TempDir())
	require.NoError(t, store.Save(&Session{UID: "u1", RefreshToken: "revoked"}))

	c := NewClient(Options{BaseURL: srv.URL, Store: store})
	defer c.Close()
	rec := newRecorder()
	c.OnSessionChange(rec.fn)
	require.NoError(t, c.Start(context.Background()))

	assert.Nil(t, rec.next(t))
	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestLateListenerGetsInitialCallback(t *testing.T) {
	_, srv := newFakeProvider(t)
	c := NewClient(Options{BaseURL: srv.URL})
	defer c.Close()
	require.NoError(t, c.Start(context.Background()))
	_, err := c.SignInWithPassword(context.Background(), "tech@shop.io", "pass1234")
	require.NoError(t, err)

	rec := newRecorder()
	unsubscribe := c.OnSessionChange(rec.fn)
	got := rec.next(t)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UID)

	unsubscribe()
	require.NoError(t, c.SignOut(context.Background()))
	select {
	case s := <-rec.ch:
		t.Fatalf("unsubscribed listener called with %v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTokenRefresh(t *testing.T) {
	fp, srv := newFakeProvider(t)
	c := NewClient(Options{BaseURL: srv.URL})
	defer c.Close()

	_, err := c.Token(context.Background(), false)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = c.SignInWithPassword(context.Background(), "tech@shop.io", "pass1234")
	require.NoError(t, err)

	tok, err := c.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "id-0", tok)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fp.refreshes))

	tok, err = c.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "id-1", tok)

	// Near expiry refreshes without being forced.
	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	tok, err = c.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "id-2", tok)
}

func TestSignOutClearsEvenWhenServerFails(t *testing.T) {
	fp, srv := newFakeProvider(t)
	fp.failOut = true
	store := NewStore(t.TempDir())
	c := NewClient(Options{BaseURL: srv.URL, Store: store})
	defer c.Close()

	rec := newRecorder()
	c.OnSessionChange(rec.fn)
	require.NoError(t, c.Start(context.Background()))
	rec.next(t)
	_, err := c.SignInWithPassword(context.Background(), "tech@shop.io", "pass1234")
	require.NoError(t, err)
	require.NotNil(t, rec.next(t))

	err = c.SignOut(context.Background())
	assert.Error(t, err)
	assert.Nil(t, rec.next(t))
	assert.Nil(t, c.Current())
	_, statErr := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRevocationEndsSession(t *testing.T) {
	fp, srv := newFakeProvider(t)
	c := NewClient(Options{BaseURL: srv.URL, Events: true})
	defer c.Close()

	rec := newRecorder()
	c.OnSessionChange(rec.fn)
	require.NoError(t, c.Start(context.Background()))
	rec.next(t)
	_, err := c.SignInWithPassword(context.Background(), "tech@shop.io", "pass1234")
	require.NoError(t, err)
	require.NotNil(t, rec.next(t))

	fp.revoke <- Event{Type: EventRevoked, UID: "u1", Reason: "disabled"}
	assert.Nil(t, rec.next(t))
	assert.Nil(t, c.Current())
}

func TestEventsURL(t *testing.T) {
	c := &Client{baseURL: "https://id.example.com"}
	assert.Equal(t, "wss://id.example.com/identity/v1/events?token=a+b", c.eventsURL("a b"))
}
