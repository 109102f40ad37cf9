package identity

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
	writeTimeout       = 10 * time.Second
	pongTimeout        = 60 * time.Second
	pingInterval       = 30 * time.Second
)

// eventsURL turns the provider base URL into the ws(s) events endpoint.
func (c *Client) eventsURL(token string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + PathEvents + "?token=" + url.QueryEscape(token)
}

// watchRevocations keeps a feed connection open while a session exists and
// ends the local session when the provider revokes it elsewhere. Each dial
// goes through Token so an expired ID token is refreshed first; a rejected
// handshake forces a refresh on the next attempt.
func (c *Client) watchRevocations(ctx context.Context) {
	delay := reconnectBaseDelay
	force := false
	for {
		c.mu.Lock()
		has := c.session != nil
		changed := c.changed
		c.mu.Unlock()

		if !has {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				continue
			}
		}

		token, err := c.Token(ctx, force)
		if err == nil {
			var conn *websocket.Conn
			var resp *http.Response
			conn, resp, err = websocket.DefaultDialer.DialContext(ctx, c.eventsURL(token), nil)
			if err == nil {
				force = false
				delay = reconnectBaseDelay
				c.readEvents(ctx, conn, changed)
				continue
			}
			force = resp != nil && resp.StatusCode == http.StatusUnauthorized
		}
		if ctx.Err() != nil {
			return
		}
		c.log.WithError(err).Debugf("events dial failed (retry in %v)", delay)
		select {
		case <-ctx.Done():
			return
		case <-changed:
		case <-time.After(delay):
		}
		delay = min(delay*2, reconnectMaxDelay)
	}
}

// readEvents reads until the connection drops, the context ends, or the
// session changes (a new session needs a connection with its own token).
func (c *Client) readEvents(ctx context.Context, conn *websocket.Conn, changed <-chan struct{}) {
	done := make(chan struct{})
	defer close(done)

	// Only this goroutine writes to conn.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-changed:
				conn.Close()
				return
			case <-done:
				conn.Close()
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				c.log.WithError(err).Debug("events connection closed")
			}
			return
		}
		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev Event) {
	if ev.Type != EventRevoked {
		return
	}
	c.mu.Lock()
	mine := c.session != nil && c.session.UID == ev.UID
	c.mu.Unlock()
	if mine {
		reason := "revoked"
		if ev.Reason != "" {
			reason = "revoked: " + ev.Reason
		}
		c.endSession(reason)
	}
}
