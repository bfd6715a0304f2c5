package decentchat

import (
	"context"
	"strings"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

// UpdateProfile writes the logged-in user's display name and picture URL.
func (c *Client) UpdateProfile(ctx context.Context, displayName, profilePicture string) (models.Profile, error) {
	username := c.Username()
	if username == "" {
		return models.Profile{}, ErrNotLoggedIn
	}

	p := models.Profile{
		Username:       username,
		DisplayName:    strings.TrimSpace(displayName),
		ProfilePicture: strings.TrimSpace(profilePicture),
		LastUpdated:    c.now().UnixMilli(),
	}
	if p.DisplayName == "" {
		p.DisplayName = username
	}

	state := c.state()
	soul := models.ProfileSoul(username)
	err := c.graph.Put(ctx, graph.Diff{
		soul: p.Node(state),
		models.UsersRoot: graph.NewNode(models.UsersRoot).
			Set(username, graph.Link{Soul: soul}, state),
	})
	if err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

// Profile reads a user's profile. Users who never saved one get their username as display name.
func (c *Client) Profile(ctx context.Context, username string) (models.Profile, error) {
	n, err := c.graph.Get(ctx, models.ProfileSoul(username))
	if err != nil {
		return models.Profile{}, err
	}
	p, ok := models.ProfileFromNode(username, n)
	if !ok || p.DisplayName == "" {
		p.Username = username
		p.DisplayName = username
	}
	return p, nil
}
