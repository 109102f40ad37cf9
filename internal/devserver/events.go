package devserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ryanKinoti/LCS-v1/internal/identity"
)

const (
	clientSendBuffer = 16
	eventWriteWait   = 10 * time.Second
)

// feedClient is one connection on the revocation feed, bound to the uid
// whose token opened it.
type feedClient struct {
	conn *websocket.Conn
	uid  string
	send chan []byte
}

func newFeedClient(conn *websocket.Conn, uid string) *feedClient {
	c := &feedClient{
		conn: conn,
		uid:  uid,
		send: make(chan []byte, clientSendBuffer),
	}
	go c.writePump()
	return c
}

func (c *feedClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *feedClient) close() {
	close(c.send)
}

// Broadcaster fans identity events out to feed connections.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*feedClient]bool
	log     *logrus.Entry
}

func NewBroadcaster(log *logrus.Entry) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*feedClient]bool),
		log:     log,
	}
}

// AddClient registers conn for uid and greets it.
func (b *Broadcaster) AddClient(conn *websocket.Conn, uid string) *feedClient {
	c := newFeedClient(conn, uid)
	if data, err := json.Marshal(identity.Event{Type: identity.EventHello, UID: uid}); err == nil {
		c.send <- data
	}

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c
}

func (b *Broadcaster) RemoveClient(c *feedClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clients[c] {
		delete(b.clients, c)
		c.close()
	}
}

// ClientCount returns the number of open feed connections.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Revoke tells every connection held by uid that its session is gone.
func (b *Broadcaster) Revoke(uid, reason string) {
	b.publish(identity.Event{Type: identity.EventRevoked, UID: uid, Reason: reason}, func(c *feedClient) bool {
		return c.uid == uid
	})
}

func (b *Broadcaster) publish(ev identity.Event, match func(*feedClient) bool) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.WithError(err).Error("marshal event")
		return
	}

	var slow []*feedClient
	b.mu.RLock()
	for c := range b.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	b.mu.RUnlock()

	for _, c := range slow {
		b.log.WithField("uid", c.uid).Warn("dropping slow events client")
		b.RemoveClient(c)
	}
}

// Close disconnects every client.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		delete(b.clients, c)
		c.close()
	}
}
