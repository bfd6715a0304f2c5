package decentchat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

const presenceWriteTimeout = 10 * time.Second

// startHeartbeat writes an online record now and then every heartbeat interval.
func (c *Client) startHeartbeat(parent context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	done := make(chan struct{})

	c.mu.Lock()
	c.stopBeat = cancel
	c.beatDone = done
	username := c.username
	interval := c.heartbeat
	c.mu.Unlock()

	beat := func() {
		wctx, wcancel := context.WithTimeout(ctx, presenceWriteTimeout)
		defer wcancel()
		p := models.Presence{Username: username, Online: true, LastSeen: c.now().UnixMilli()}
		if err := c.writePresence(wctx, p); err != nil && ctx.Err() == nil {
			c.logger.Debug().Err(err).Str("user", username).Msg("presence heartbeat failed")
		}
	}
	beat()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
}

// stopHeartbeat cancels the ticker and waits for it to exit.
func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	cancel, done := c.stopBeat, c.beatDone
	c.stopBeat, c.beatDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Client) writePresence(ctx context.Context, p models.Presence) error {
	state := c.state()
	soul := models.PresenceSoul(p.Username)
	return c.graph.Put(ctx, graph.Diff{
		soul: p.Node(state),
		models.PresenceRoot: graph.NewNode(models.PresenceRoot).
			Set(p.Username, graph.Link{Soul: soul}, state),
	})
}

// PresenceTracker folds presence records into the set of online users. The set is recomputed
// on every presence update and on every heartbeat tick, so stale records drop out even when
// nothing new arrives.
type PresenceTracker struct {
	now        func() time.Time
	staleAfter time.Duration
	onChange   func([]string)

	mu      sync.Mutex
	records map[string]models.Presence
	online  []string

	cancel func()
	stop   chan struct{}
	once   sync.Once
}

// TrackPresence subscribes to every presence record. onChange, when set, receives the sorted
// online set whenever it changes.
func (c *Client) TrackPresence(onChange func(online []string)) *PresenceTracker {
	t := &PresenceTracker{
		now:        c.now,
		staleAfter: c.staleAfter,
		onChange:   onChange,
		records:    make(map[string]models.Presence),
		stop:       make(chan struct{}),
	}
	t.cancel = watchMap(c.graph, models.PresenceRoot, func(username string, n *graph.Node) {
		p, ok := models.PresenceFromNode(username, n)
		if !ok {
			return
		}
		t.mu.Lock()
		t.records[username] = p
		t.mu.Unlock()
		t.Refresh()
	})

	interval := c.heartbeat
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				t.Refresh()
			}
		}
	}()
	return t
}

// Refresh recomputes the online set against the current time.
func (t *PresenceTracker) Refresh() {
	now := t.now()

	t.mu.Lock()
	online := make([]string, 0, len(t.records))
	for name, p := range t.records {
		if p.IsOnline(now, t.staleAfter) {
			online = append(online, name)
		}
	}
	sort.Strings(online)
	changed := !equalStrings(online, t.online)
	t.online = online
	t.mu.Unlock()

	if changed && t.onChange != nil {
		t.onChange(append([]string(nil), online...))
	}
}

// Online returns the sorted online set.
func (t *PresenceTracker) Online() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.online...)
}

// IsOnline reports whether username is in the online set.
func (t *PresenceTracker) IsOnline(username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := sort.SearchStrings(t.online, username)
	return i < len(t.online) && t.online[i] == username
}

// Stop ends the subscription and the tick loop.
func (t *PresenceTracker) Stop() {
	t.once.Do(func() {
		close(t.stop)
		t.cancel()
	})
}

// OnlineUsers reads every presence record once and returns who is online now.
func (c *Client) OnlineUsers(ctx context.Context) ([]string, error) {
	root, err := c.graph.Get(ctx, models.PresenceRoot)
	if err != nil || root == nil {
		return nil, err
	}
	now := c.now()
	var online []string
	for _, username := range root.Fields() {
		soul, ok := root.Link(username)
		if !ok {
			continue
		}
		n, err := c.graph.Get(ctx, soul)
		if err != nil {
			return nil, err
		}
		if p, ok := models.PresenceFromNode(username, n); ok && p.IsOnline(now, c.staleAfter) {
			online = append(online, username)
		}
	}
	return online, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
