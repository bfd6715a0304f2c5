// Package peer connects a client to a relay's /gun endpoint and keeps a local copy of every
// node it has seen, so reads and subscriptions survive short disconnects.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/wire"
)

var (
	ErrClosed       = errors.New("peer connection closed")
	ErrDisconnected = errors.New("relay disconnected")
)

const (
	writeWait       = 10 * time.Second
	resyncTimeout   = 10 * time.Second
	defaultMinDelay = 250 * time.Millisecond
	defaultMaxDelay = 10 * time.Second
)

// Conn is a client connection to a relay. It implements the same Put/Get/On surface as
// graph.Memory.
type Conn struct {
	url      string
	dialer   *websocket.Dialer
	logger   zerolog.Logger
	minDelay time.Duration
	maxDelay time.Duration

	pid   string
	cache *graph.Memory

	mu sync.Mutex // guards ws and serializes writes
	ws *websocket.Conn

	pmu     sync.Mutex
	pending map[string]chan *wire.Frame
	watched map[string]bool
	relayID string

	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger sets the connection logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Conn) { c.logger = l }
}

// WithDialer overrides websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Conn) { c.dialer = d }
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Conn) {
		c.minDelay = min
		c.maxDelay = max
	}
}

// Dial connects to a relay. The first dial must succeed; later drops are redialed forever.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	c := &Conn{
		url:      url,
		dialer:   websocket.DefaultDialer,
		logger:   zerolog.Nop(),
		minDelay: defaultMinDelay,
		maxDelay: defaultMaxDelay,
		cache:    graph.NewMemory(),
		pending:  make(map[string]chan *wire.Frame),
		watched:  make(map[string]bool),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if id, err := crypto.NewUUIDv7(); err == nil {
		c.pid = id.String()
	}

	ws, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	if err := c.attach(ws); err != nil {
		ws.Close()
		return nil, err
	}
	c.logger.Info().Str("relay", url).Str("pid", c.pid).Msg("connected to relay")

	go c.supervise(ws)
	return c, nil
}

// RelayID returns the id the relay sent in its last hi frame.
func (c *Conn) RelayID() string {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	return c.relayID
}

// Put sends a diff to the relay and waits for its ack. The local cache only takes the diff
// once the relay has accepted it.
func (c *Conn) Put(ctx context.Context, diff graph.Diff) error {
	for _, n := range diff {
		if n == nil {
			continue
		}
		if err := n.Validate(); err != nil {
			return err
		}
	}

	reply, err := c.request(ctx, &wire.Frame{ID: wire.NewID(), Put: diff})
	if err != nil {
		return err
	}
	if reply.Err != "" {
		return errors.New(reply.Err)
	}
	c.cache.Merge(diff)
	return nil
}

// Get asks the relay for a node. When the relay is unreachable it answers from the cache.
func (c *Conn) Get(ctx context.Context, soul string) (*graph.Node, error) {
	c.watch(soul)

	reply, err := c.request(ctx, &wire.Frame{ID: wire.NewID(), Get: &wire.Lex{Soul: soul}})
	if errors.Is(err, ErrDisconnected) {
		if n := c.cache.Node(soul); n != nil {
			return n, nil
		}
	}
	if err != nil {
		return nil, err
	}
	if reply.Err != "" {
		return nil, errors.New(reply.Err)
	}
	return c.cache.Node(soul), nil
}

// On subscribes to a node. fn fires with the cached node, if any, and on every change.
func (c *Conn) On(soul string, fn func(*graph.Node)) func() {
	if c.watch(soul) {
		go c.fetch(soul)
	}
	return c.cache.On(soul, fn)
}

// Close stops the connection and its reconnect loop.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		if c.ws != nil {
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			err = c.ws.Close()
		}
		c.mu.Unlock()
	})
	return err
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// watch records a soul for re-requesting after reconnect; it reports whether it is new.
func (c *Conn) watch(soul string) bool {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	if c.watched[soul] {
		return false
	}
	c.watched[soul] = true
	return true
}

func (c *Conn) fetch(soul string) {
	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if _, err := c.request(ctx, &wire.Frame{ID: wire.NewID(), Get: &wire.Lex{Soul: soul}}); err != nil {
		c.logger.Debug().Err(err).Str("soul", soul).Msg("fetch failed")
	}
}

func (c *Conn) request(ctx context.Context, f *wire.Frame) (*wire.Frame, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	ch := make(chan *wire.Frame, 1)
	c.pmu.Lock()
	c.pending[f.ID] = ch
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, f.ID)
		c.pmu.Unlock()
	}()

	if err := c.send(f); err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrDisconnected
		}
		return reply, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) send(f *wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrDisconnected
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (c *Conn) attach(ws *websocket.Conn) error {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	return c.send(wire.Hi(c.pid))
}

// detach drops the socket and fails every request still waiting on it.
func (c *Conn) detach(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	ws.Close()

	c.pmu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pmu.Unlock()
}

func (c *Conn) supervise(ws *websocket.Conn) {
	for {
		c.readLoop(ws)
		c.detach(ws)
		if c.isClosed() {
			return
		}
		c.logger.Warn().Str("relay", c.url).Msg("relay connection lost, reconnecting")

		ws = c.redial()
		if ws == nil {
			return
		}
		if err := c.attach(ws); err != nil {
			c.logger.Debug().Err(err).Msg("hi failed after reconnect")
			continue
		}
		c.logger.Info().Str("relay", c.url).Msg("reconnected to relay")
		c.resync()
	}
}

// redial retries with capped exponential backoff; it returns nil once the conn is closed.
func (c *Conn) redial() *websocket.Conn {
	delay := c.minDelay
	for {
		select {
		case <-c.closed:
			return nil
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
		ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
		cancel()
		if err == nil {
			return ws
		}
		c.logger.Debug().Err(err).Dur("delay", delay).Msg("redial failed")

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// resync re-requests every watched soul so updates missed while offline are merged.
func (c *Conn) resync() {
	c.pmu.Lock()
	souls := make([]string, 0, len(c.watched))
	for soul := range c.watched {
		souls = append(souls, soul)
	}
	c.pmu.Unlock()

	for _, soul := range souls {
		go c.fetch(soul)
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				c.logger.Debug().Err(err).Msg("read failed")
			}
			return
		}
		frames, err := wire.Decode(data)
		if err != nil {
			c.logger.Debug().Err(err).Msg("bad frame from relay")
			continue
		}
		for _, f := range frames {
			if f != nil {
				c.handle(f)
			}
		}
	}
}

func (c *Conn) handle(f *wire.Frame) {
	if f.DAM == "hi" {
		c.pmu.Lock()
		c.relayID = f.PID
		c.pmu.Unlock()
		return
	}
	if f.Put != nil {
		c.cache.Merge(f.Put)
	}
	if f.Ack == "" {
		return
	}
	c.pmu.Lock()
	ch, ok := c.pending[f.Ack]
	if ok {
		delete(c.pending, f.Ack)
	}
	c.pmu.Unlock()
	if ok {
		ch <- f
	}
}
