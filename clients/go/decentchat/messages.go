package decentchat

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/media"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

// Send posts a text message to channel ("" means general).
func (c *Client) Send(ctx context.Context, channel, text string) (models.Message, error) {
	username := c.Username()
	if username == "" {
		return models.Message{}, ErrNotLoggedIn
	}
	channel, err := resolveChannel(channel)
	if err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}

	msg := c.newMessage(channel, username)
	msg.Type = models.TypeText
	msg.Text = text
	return msg, c.putMessage(ctx, msg)
}

// SendMedia resizes an image, uploads it and posts its URL. Files over 5 MB are rejected
// before any decoding or upload.
func (c *Client) SendMedia(ctx context.Context, channel, name string, r io.Reader, size int64) (models.Message, error) {
	if err := media.CheckSize(size); err != nil {
		return models.Message{}, err
	}
	username := c.Username()
	if username == "" {
		return models.Message{}, ErrNotLoggedIn
	}
	if c.uploader == nil {
		return models.Message{}, ErrNoUploader
	}
	channel, err := resolveChannel(channel)
	if err != nil {
		return models.Message{}, err
	}

	data, err := media.Prepare(r)
	if err != nil {
		return models.Message{}, err
	}
	url, err := c.uploader.Upload(ctx, jpegName(name), data)
	if err != nil {
		return models.Message{}, fmt.Errorf("upload: %w", err)
	}

	msg := c.newMessage(channel, username)
	msg.Type = models.TypeMedia
	msg.Content = url
	return msg, c.putMessage(ctx, msg)
}

// resolveChannel defaults an empty name to the general channel and rejects names that
// would not form a single soul segment.
func resolveChannel(channel string) (string, error) {
	if channel == "" {
		return models.DefaultChannel, nil
	}
	if !channelName.MatchString(channel) {
		return "", ErrInvalidChannel
	}
	return channel, nil
}

func (c *Client) newMessage(channel, sender string) models.Message {
	id := c.nextID()
	return models.Message{
		ID:        strconv.FormatInt(id, 10),
		Sender:    sender,
		Timestamp: id,
		Channel:   channel,
	}
}

func (c *Client) putMessage(ctx context.Context, msg models.Message) error {
	state := c.state()
	soul := models.MessageSoul(msg.Channel, msg.ID)
	list := models.MessagesSoul(msg.Channel)

	err := c.graph.Put(ctx, graph.Diff{
		soul: msg.Node(state),
		list: graph.NewNode(list).Set(msg.ID, graph.Link{Soul: soul}, state),
		models.MessagesRoot: graph.NewNode(models.MessagesRoot).
			Set(msg.Channel, graph.Link{Soul: list}, state),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	c.logger.Debug().Str("channel", msg.Channel).Str("id", msg.ID).Msg("message sent")
	return nil
}

// Timeline is the deduplicated, timestamp-ordered view of one channel.
type Timeline struct {
	channel string

	mu   sync.Mutex
	byID map[string]models.Message
	list []models.Message

	cancel func()
}

func newTimeline(channel string) *Timeline {
	return &Timeline{channel: channel, byID: make(map[string]models.Message)}
}

// add folds a message in and reports whether the view changed.
func (t *Timeline) add(m models.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byID[m.ID]; ok && old == m {
		return false
	}
	t.byID[m.ID] = m

	list := make([]models.Message, 0, len(t.byID))
	for _, msg := range t.byID {
		list = append(list, msg)
	}
	sortMessages(list)
	t.list = list
	return true
}

// Messages returns a snapshot ordered by timestamp.
func (t *Timeline) Messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.Message(nil), t.list...)
}

// Channel returns the channel the timeline follows.
func (t *Timeline) Channel() string {
	return t.channel
}

// Stop ends the subscription.
func (t *Timeline) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Subscribe follows a channel. fn receives a fresh snapshot after every change.
func (c *Client) Subscribe(channel string, fn func([]models.Message)) *Timeline {
	if channel == "" {
		channel = models.DefaultChannel
	}
	t := newTimeline(channel)
	t.cancel = watchMap(c.graph, models.MessagesSoul(channel), func(id string, n *graph.Node) {
		m, ok := models.MessageFromNode(id, n)
		if !ok {
			return
		}
		if t.add(m) && fn != nil {
			fn(t.Messages())
		}
	})
	return t
}

// Messages reads a channel once.
func (c *Client) Messages(ctx context.Context, channel string) ([]models.Message, error) {
	channel, err := resolveChannel(channel)
	if err != nil {
		return nil, err
	}
	list, err := c.graph.Get(ctx, models.MessagesSoul(channel))
	if err != nil || list == nil {
		return nil, err
	}
	t := newTimeline(channel)
	for _, id := range list.Fields() {
		soul, ok := list.Link(id)
		if !ok {
			continue
		}
		n, err := c.graph.Get(ctx, soul)
		if err != nil {
			return nil, err
		}
		if m, ok := models.MessageFromNode(id, n); ok {
			t.add(m)
		}
	}
	return t.Messages(), nil
}

func sortMessages(list []models.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Timestamp != list[j].Timestamp {
			return list[i].Timestamp < list[j].Timestamp
		}
		return list[i].ID < list[j].ID
	})
}

func jpegName(name string) string {
	if name == "" {
		return "image.jpg"
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name + ".jpg"
}
