package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/dcf77-receiver/internal/logic"
)

const (
	liveQueue     = 256
	liveWriteWait = 5 * time.Second
	livePingEvery = 30 * time.Second
	liveReadWait  = 60 * time.Second
)

// LiveMessage is one receiver event as sent on /live.
type LiveMessage struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Second    *int   `json:"second,omitempty"`
	Value     *int   `json:"value,omitempty"`
	Valid     *bool  `json:"valid,omitempty"`
	Time      string `json:"time,omitempty"`
	Bits      int    `json:"bits,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newLiveMessage(e logic.Event) LiveMessage {
	m := LiveMessage{
		Type:      string(e.Type),
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	switch e.Type {
	case logic.EventBit:
		sec, v := e.Second, 0
		if e.Value {
			v = 1
		}
		m.Second, m.Value = &sec, &v
	case logic.EventFaultyBit:
		sec := e.Second
		m.Second = &sec
	case logic.EventMinute:
		valid := e.Valid()
		m.Valid = &valid
		m.Bits = e.Bits
		if valid {
			m.Time = e.Time.Time().Format(time.RFC3339)
		} else if e.Err != nil {
			m.Error = e.Err.Error()
		}
	}
	return m
}

// Live streams receiver events to websocket clients. Broadcast never blocks the
// caller; writes happen in Run.
type Live struct {
	clients   map[*websocket.Conn]*sync.Mutex // per-connection write lock
	clientsMu sync.RWMutex
	upgrader  websocket.Upgrader
	queue     chan LiveMessage
}

// NewLive creates an empty hub.
func NewLive() *Live {
	return &Live{
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		queue: make(chan LiveMessage, liveQueue),
	}
}

// Broadcast queues an event for all connected clients. Events are dropped when
// nobody is listening or the queue is full.
func (l *Live) Broadcast(e logic.Event) {
	if l.Clients() == 0 {
		return
	}
	select {
	case l.queue <- newLiveMessage(e):
	default:
	}
}

// Clients returns the number of connected clients.
func (l *Live) Clients() int {
	l.clientsMu.RLock()
	defer l.clientsMu.RUnlock()
	return len(l.clients)
}

// Run delivers queued events until ctx is done, then closes all clients.
func (l *Live) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.closeAll()
			return nil
		case m := <-l.queue:
			l.send(m)
		}
	}
}

func (l *Live) send(m LiveMessage) {
	data, err := json.Marshal(m)
	if err != nil {
		log.Printf("live: marshal %s: %v", m.Type, err)
		return
	}

	l.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(l.clients))
	locks := make([]*sync.Mutex, 0, len(l.clients))
	for c, mu := range l.clients {
		conns = append(conns, c)
		locks = append(locks, mu)
	}
	l.clientsMu.RUnlock()

	for i, c := range conns {
		locks[i].Lock()
		c.SetWriteDeadline(time.Now().Add(liveWriteWait))
		err := c.WriteMessage(websocket.TextMessage, data)
		locks[i].Unlock()
		if err != nil {
			log.Printf("live: write failed, dropping client: %v", err)
			l.remove(c)
		}
	}
}

func (l *Live) remove(c *websocket.Conn) {
	l.clientsMu.Lock()
	_, ok := l.clients[c]
	delete(l.clients, c)
	n := len(l.clients)
	l.clientsMu.Unlock()
	if ok {
		c.Close()
		log.Printf("live: client disconnected (remaining: %d)", n)
	}
}

func (l *Live) closeAll() {
	l.clientsMu.Lock()
	defer l.clientsMu.Unlock()
	for c := range l.clients {
		c.Close()
		delete(l.clients, c)
	}
}

// ServeHTTP upgrades the request and registers the client.
func (l *Live) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade: %v", err)
		return
	}

	writeMu := &sync.Mutex{}
	l.clientsMu.Lock()
	l.clients[conn] = writeMu
	n := len(l.clients)
	l.clientsMu.Unlock()
	log.Printf("live: client connected from %s (total: %d)", r.RemoteAddr, n)

	go l.keepalive(conn, writeMu)
}

// keepalive pings the client and reads until it goes away. Client messages are
// ignored.
func (l *Live) keepalive(conn *websocket.Conn, writeMu *sync.Mutex) {
	defer l.remove(conn)

	conn.SetReadDeadline(time.Now().Add(liveReadWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(liveReadWait))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(livePingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("live: read error: %v", err)
			}
			return
		}
	}
}
