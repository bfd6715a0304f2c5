package decentchat

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

var channelName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// generalChannel is listed even before anyone writes a channel record for it.
var generalChannel = models.Channel{Name: models.DefaultChannel, CreatedBy: "system"}

// CreateChannel records a new channel.
func (c *Client) CreateChannel(ctx context.Context, name string) (models.Channel, error) {
	username := c.Username()
	if username == "" {
		return models.Channel{}, ErrNotLoggedIn
	}
	if !channelName.MatchString(name) {
		return models.Channel{}, ErrInvalidChannel
	}
	if name == models.DefaultChannel {
		return models.Channel{}, ErrChannelExists
	}

	existing, err := c.graph.Get(ctx, models.ChannelSoul(name))
	if err != nil {
		return models.Channel{}, err
	}
	if _, ok := models.ChannelFromNode(existing); ok {
		return models.Channel{}, ErrChannelExists
	}

	ch := models.Channel{Name: name, CreatedBy: username, Timestamp: c.now().UnixMilli()}
	state := c.state()
	soul := models.ChannelSoul(name)
	err = c.graph.Put(ctx, graph.Diff{
		soul: ch.Node(state),
		models.ChannelsRoot: graph.NewNode(models.ChannelsRoot).
			Set(name, graph.Link{Soul: soul}, state),
	})
	if err != nil {
		return models.Channel{}, err
	}
	c.logger.Info().Str("channel", name).Msg("channel created")
	return ch, nil
}

// Channels lists every channel ordered by creation time, general first.
func (c *Client) Channels(ctx context.Context) ([]models.Channel, error) {
	found := map[string]models.Channel{}
	root, err := c.graph.Get(ctx, models.ChannelsRoot)
	if err != nil {
		return nil, err
	}
	if root != nil {
		for _, name := range root.Fields() {
			soul, ok := root.Link(name)
			if !ok {
				continue
			}
			n, err := c.graph.Get(ctx, soul)
			if err != nil {
				return nil, err
			}
			if ch, ok := models.ChannelFromNode(n); ok {
				found[ch.Name] = ch
			}
		}
	}
	return sortChannels(found), nil
}

// WatchChannels calls fn with the full channel list whenever a channel appears.
func (c *Client) WatchChannels(fn func([]models.Channel)) (cancel func()) {
	var mu sync.Mutex
	found := map[string]models.Channel{}

	fn(sortChannels(map[string]models.Channel{}))
	return watchMap(c.graph, models.ChannelsRoot, func(_ string, n *graph.Node) {
		ch, ok := models.ChannelFromNode(n)
		if !ok {
			return
		}
		mu.Lock()
		if old, seen := found[ch.Name]; seen && old == ch {
			mu.Unlock()
			return
		}
		found[ch.Name] = ch
		list := sortChannels(found)
		mu.Unlock()
		fn(list)
	})
}

func sortChannels(found map[string]models.Channel) []models.Channel {
	list := []models.Channel{generalChannel}
	for name, ch := range found {
		if name != models.DefaultChannel {
			list = append(list, ch)
		}
	}
	sort.SliceStable(list[1:], func(i, j int) bool {
		a, b := list[1+i], list[1+j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Name < b.Name
	})
	return list
}
