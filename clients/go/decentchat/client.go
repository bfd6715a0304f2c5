// Package decentchat is the chat client shell: it turns user actions into writes against the
// shared graph and folds live graph updates back into view state.
package decentchat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/media"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

var (
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrFileTooLarge     = media.ErrFileTooLarge
	ErrUserExists       = errors.New("user already created")
	ErrWrongCredentials = errors.New("wrong user or password")
	ErrChannelExists    = errors.New("channel already exists")
	ErrInvalidChannel   = errors.New("channel names may only use letters, digits, '-' and '_' (max 50)")
	ErrNoUploader       = errors.New("no media uploader configured")
)

// Presence timing, re-exported for callers that only import this package.
const (
	HeartbeatInterval = models.HeartbeatInterval
	StaleAfter        = models.StaleAfter
)

// Graph is the shared graph as seen by a client. *graph.Memory and *peer.Conn implement it.
type Graph interface {
	Put(ctx context.Context, diff graph.Diff) error
	Get(ctx context.Context, soul string) (*graph.Node, error)
	On(soul string, fn func(*graph.Node)) (cancel func())
}

// Client holds view state for one user.
type Client struct {
	graph    Graph
	logger   zerolog.Logger
	now      func() time.Time
	clock    *graph.Clock
	sessions SessionStore
	uploader media.Uploader

	heartbeat  time.Duration
	staleAfter time.Duration

	mu       sync.Mutex
	username string
	pair     *crypto.KeyPair
	lastID   int64
	stopBeat context.CancelFunc
	beatDone chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock replaces time.Now, for message ids, presence and states.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithSessionStore sets where the session is persisted.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.sessions = s }
}

// WithUploader sets the media uploader used by SendMedia.
func WithUploader(u media.Uploader) Option {
	return func(c *Client) { c.uploader = u }
}

// WithPresenceTiming overrides the heartbeat interval and staleness window.
func WithPresenceTiming(interval, staleAfter time.Duration) Option {
	return func(c *Client) {
		c.heartbeat = interval
		c.staleAfter = staleAfter
	}
}

// New creates a client over g.
func New(g Graph, opts ...Option) *Client {
	c := &Client{
		graph:      g,
		logger:     zerolog.Nop(),
		now:        time.Now,
		sessions:   &MemorySessionStore{},
		heartbeat:  HeartbeatInterval,
		staleAfter: StaleAfter,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.clock = graph.NewClock(c.now)
	return c
}

// Username returns the logged-in username, or "".
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// LoggedIn reports whether a user is authenticated.
func (c *Client) LoggedIn() bool {
	return c.Username() != ""
}

// Pub returns the logged-in user's public key, or "".
func (c *Client) Pub() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pair == nil {
		return ""
	}
	return c.pair.Pub
}

// Close stops the heartbeat without writing an offline record or clearing the session.
func (c *Client) Close() {
	c.stopHeartbeat()
}

func (c *Client) state() float64 {
	return c.clock.State()
}

// nextID returns an epoch-millis id, bumped to stay strictly increasing for this client.
func (c *Client) nextID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.lastID {
		ms = c.lastID + 1
	}
	c.lastID = ms
	return ms
}
