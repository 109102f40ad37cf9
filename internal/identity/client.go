package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ryanKinoti/LCS-v1/internal/logging"
)

// refreshSkew is how close to expiry a cached ID token may get before
// Token refreshes it.
const refreshSkew = time.Minute

// Options configures a Client.
type Options struct {
	BaseURL string
	// Store persists the refresh token. Nil disables persistence.
	Store *Store
	// Events subscribes to the revocation feed while a session is active.
	Events  bool
	Timeout time.Duration
	Logger  *logrus.Entry
}

// Client talks to the identity provider and owns the local session.
// Listeners registered with OnSessionChange are called in emission order
// from a single goroutine.
type Client struct {
	baseURL string
	http    *http.Client
	store   *Store
	events  bool
	log     *logrus.Entry
	now     func() time.Time

	mu        sync.Mutex
	session   *Session
	started   bool
	listeners map[int]func(*Session)
	nextID    int
	changed   chan struct{} // closed and replaced on every session change

	refreshMu sync.Mutex

	queueMu sync.Mutex
	queue   []emission
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type emission struct {
	session *Session
	only    int // listener id, or 0 for all
}

// NewClient creates a client and starts its dispatcher. Call Close when done.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      &http.Client{Timeout: opts.Timeout},
		store:     opts.Store,
		events:    opts.Events,
		log:       opts.Logger,
		now:       time.Now,
		listeners: make(map[int]func(*Session)),
		changed:   make(chan struct{}),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.wg.Add(1)
	go c.dispatchLoop()
	return c
}

// Start restores a persisted session, if any, and then tells every listener
// the initial state. It returns once the restore attempt is finished.
func (c *Client) Start(ctx context.Context) error {
	var restored *Session
	if c.store != nil {
		saved, err := c.store.Load()
		if err != nil {
			c.log.WithError(err).Warn("discarding unreadable saved session")
			_ = c.store.Clear()
		}
		if saved != nil {
			restored, err = c.exchange(ctx, saved.RefreshToken)
			if err != nil {
				c.log.WithError(err).Info("saved session could not be restored")
				_ = c.store.Clear()
				restored = nil
			} else {
				c.persist(restored)
			}
		}
	}

	c.mu.Lock()
	c.session = restored
	c.started = true
	c.signalChangedLocked()
	c.mu.Unlock()
	c.enqueue(emission{session: restored.Clone()})

	if c.events {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.watchRevocations(c.ctx)
		}()
	}
	return nil
}

// Close stops the dispatcher and the events feed.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

// OnSessionChange registers fn. If Start has already run, fn is called once
// with the current session. The returned func unregisters fn.
func (c *Client) OnSessionChange(fn func(*Session)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	started := c.started
	current := c.session.Clone()
	c.mu.Unlock()

	if started {
		c.enqueue(emission{session: current, only: id})
	}
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Current returns a copy of the local session, or nil.
func (c *Client) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// SignInWithPassword exchanges credentials for a session. On success the
// session is persisted and listeners are notified.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var tr TokenResponse
	if err := c.post(ctx, PathSignIn, "", SignInRequest{Email: email, Password: password}, &tr); err != nil {
		return nil, err
	}
	s := tr.session(c.now())
	c.setSession(s)
	c.persist(s)
	c.log.WithField("uid", s.UID).Info("signed in")
	return s.Clone(), nil
}

// SignOut ends the session. Local state is always cleared; the returned
// error only reports a failed server-side revocation.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	var err error
	if s != nil {
		err = c.post(ctx, PathSignOut, s.IDToken, TokenRequest{RefreshToken: s.RefreshToken}, nil)
	}
	c.endSession("signed out")
	return err
}

// Token returns a valid ID token, refreshing it when it is close to expiry
// or when forceRefresh is set.
func (c *Client) Token(ctx context.Context, forceRefresh bool) (string, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return "", ErrNoSession
	}
	if !forceRefresh && !s.expiresWithin(c.now(), refreshSkew) {
		return s.IDToken, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	c.mu.Lock()
	cur := c.session
	c.mu.Unlock()
	if cur == nil {
		return "", ErrNoSession
	}
	if cur != s && !cur.expiresWithin(c.now(), refreshSkew) {
		return cur.IDToken, nil
	}

	fresh, err := c.exchange(ctx, cur.RefreshToken)
	if err != nil {
		if HasCode(err, CodeTokenExpired) || HasCode(err, CodeUserDisabled) {
			c.endSession("refresh rejected")
		}
		return "", err
	}

	c.mu.Lock()
	// Only install the refresh if nobody signed out or in meanwhile.
	if c.session == cur {
		c.session = fresh
	}
	c.mu.Unlock()
	c.persist(fresh)
	return fresh.IDToken, nil
}

func (c *Client) exchange(ctx context.Context, refreshToken string) (*Session, error) {
	var tr TokenResponse
	if err := c.post(ctx, PathToken, "", TokenRequest{RefreshToken: refreshToken}, &tr); err != nil {
		return nil, err
	}
	return tr.session(c.now()), nil
}

// setSession installs s and notifies listeners.
func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.signalChangedLocked()
	c.mu.Unlock()
	c.enqueue(emission{session: s.Clone()})
}

// endSession clears the local session and notifies listeners if there was one.
func (c *Client) endSession(reason string) {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	if had {
		c.signalChangedLocked()
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.log.WithError(err).Warn("failed to clear saved session")
		}
	}
	if had {
		c.log.WithField("reason", reason).Info("session ended")
		c.enqueue(emission{})
	}
}

func (c *Client) persist(s *Session) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(s); err != nil {
		c.log.WithError(err).Warn("failed to save session")
	}
}

func (c *Client) signalChangedLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *Client) enqueue(e emission) {
	c.queueMu.Lock()
	c.queue = append(c.queue, e)
	c.queueMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) dispatchLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}
		for {
			c.queueMu.Lock()
			if len(c.queue) == 0 {
				c.queueMu.Unlock()
				break
			}
			e := c.queue[0]
			c.queue = c.queue[1:]
			c.queueMu.Unlock()
			c.deliver(e)
		}
	}
}

func (c *Client) deliver(e emission) {
	c.mu.Lock()
	var fns []func(*Session)
	if e.only != 0 {
		if fn, ok := c.listeners[e.only]; ok {
			fns = append(fns, fn)
		}
	} else {
		for id := 1; id <= c.nextID; id++ {
			if fn, ok := c.listeners[id]; ok {
				fns = append(fns, fn)
			}
		}
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(e.session.Clone())
	}
}

func (c *Client) post(ctx context.Context, path, bearer string, in, out interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Code: CodeUnavailable, Message: "identity provider unreachable", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Code: CodeUnavailable, Message: "reading response", Cause: err}
	}
	if resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, body)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("POST %s: decode: %w", path, err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var eb ErrorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Code != "" {
		return &Error{Code: eb.Error.Code, Message: eb.Error.Message, StatusCode: status}
	}
	code := CodeUnavailable
	switch status {
	case http.StatusUnauthorized, http.StatusBadRequest:
		code = CodeInvalidCredentials
	case http.StatusTooManyRequests:
		code = CodeTooManyAttempts
	}
	return &Error{Code: code, Message: http.StatusText(status), StatusCode: status,
		Cause: errors.New(strings.TrimSpace(string(body)))}
}
