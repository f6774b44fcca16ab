// Package feed broadcasts periodic order book snapshots to subscribed
// websocket clients. It is a pure consumer of Engine.Snapshot — like
// the wire server (C9) it never touches the engine mutex directly,
// only the already-locked public accessor.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"lobengine/internal/engine"
)

// DefaultInterval is the broadcast cadence absent an override.
const DefaultInterval = 250 * time.Millisecond

const clientSendBuffer = 16

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Frame is the JSON snapshot shape pushed to every subscriber.
type Frame struct {
	Bids []engine.LevelInfo `json:"bids"`
	Asks []engine.LevelInfo `json:"asks"`
}

// Feed tracks subscribed clients and periodically snapshots e to all
// of them.
type Feed struct {
	e        *engine.Engine
	interval time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New builds a Feed over e with the given broadcast interval (<=0 uses
// DefaultInterval).
func New(e *engine.Engine, interval time.Duration) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Feed{
		e:        e,
		interval: interval,
		clients:  make(map[*client]struct{}),
	}
}

// Handler upgrades an HTTP request to a websocket and registers the
// connection as a subscriber until it disconnects.
func (f *Feed) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("feed: upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBuffer)}
	f.mu.Lock()
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	go f.writeLoop(c)
}

func (f *Feed) writeLoop(c *client) {
	defer func() {
		f.mu.Lock()
		delete(f.clients, c)
		f.mu.Unlock()
		c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// Run broadcasts a fresh snapshot every interval until t is dying.
func (f *Feed) Run(t *tomb.Tomb) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			f.broadcast()
		}
	}
}

func (f *Feed) broadcast() {
	bids, asks := f.e.Snapshot()
	payload, err := json.Marshal(Frame{Bids: bids, Asks: asks})
	if err != nil {
		log.Error().Err(err).Msg("feed: marshal snapshot")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		select {
		case c.send <- payload:
		default:
			// Slow subscriber: drop the frame rather than block the
			// broadcast loop on it (spec §4.11).
			log.Warn().Msg("feed: dropping frame for slow subscriber")
		}
	}
}

// ClientCount reports the number of currently subscribed clients.
func (f *Feed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
