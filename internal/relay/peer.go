package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
	"github.com/AaravAtGit/DecentChat/internal/metrics"
	"github.com/AaravAtGit/DecentChat/internal/wire"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Max message size
	maxMessageSize = 512 * 1024 // 512 KB

	// Time allowed for a frame to touch the store
	frameTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Peer is one websocket connection to the relay.
type Peer struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	remote string

	mu     sync.Mutex
	send   chan []byte
	closed bool
	pid    string
}

func newPeer(hub *Hub, conn *websocket.Conn, remote string) *Peer {
	id := remote
	if u, err := crypto.NewUUIDv7(); err == nil {
		id = u.String()
	}
	return &Peer{
		hub:    hub,
		conn:   conn,
		id:     id,
		remote: remote,
		send:   make(chan []byte, 256),
	}
}

// PID returns the id the peer announced in its hi frame.
func (p *Peer) PID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *Peer) setPID(pid string) {
	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()
}

// enqueue queues data without blocking; it reports false when the buffer is full.
func (p *Peer) enqueue(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return true
	}
	select {
	case p.send <- data:
		return true
	default:
		return false
	}
}

func (p *Peer) closeSend() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

func (p *Peer) reply(f *wire.Frame) {
	data, err := wire.Encode(f)
	if err != nil {
		p.hub.logger.Error().Err(err).Str("peer", p.id).Msg("failed to encode frame")
		return
	}
	if !p.enqueue(data) {
		p.hub.logger.Warn().Str("peer", p.id).Msg("peer buffer full, dropping reply")
	}
}

// readPump pumps frames from the websocket into the hub.
func (p *Peer) readPump() {
	defer func() {
		p.hub.leave(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				p.hub.logger.Warn().Err(err).Str("peer", p.id).Msg("unexpected close")
			}
			return
		}

		frames, err := wire.Decode(message)
		if err != nil {
			metrics.FramesTotal.WithLabelValues("invalid").Inc()
			p.hub.logger.Debug().Err(err).Str("peer", p.id).Msg("bad frame")
			p.reply(&wire.Frame{ID: wire.NewID(), Err: err.Error()})
			continue
		}

		for _, f := range frames {
			if f == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
			resp := p.hub.HandleFrame(ctx, p, f)
			cancel()
			if resp != nil {
				p.reply(resp)
			}
		}
	}
}

// writePump pumps queued frames to the websocket and keeps it alive with pings.
func (p *Peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				p.hub.logger.Debug().Err(err).Str("peer", p.id).Msg("write failed")
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request, greets the peer with the relay id and starts its pumps.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	p := newPeer(hub, conn, r.RemoteAddr)
	if !hub.join(p) {
		conn.Close()
		return
	}
	p.reply(wire.Hi(hub.ID()))

	go p.writePump()
	go p.readPump()
}

// Handler returns an http.Handler serving the sync endpoint.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	})
}
