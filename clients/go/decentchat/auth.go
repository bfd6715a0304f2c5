package decentchat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/AaravAtGit/DecentChat/internal/crypto"
	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

// SignUp creates an identity for username, sealed under password, then logs in.
func (c *Client) SignUp(ctx context.Context, username, password string) error {
	if err := checkCredentials(username, password); err != nil {
		return err
	}

	alias, err := c.graph.Get(ctx, models.AliasSoul(username))
	if err != nil {
		return err
	}
	if alias != nil && len(alias.Values) > 0 {
		return ErrUserExists
	}

	pair, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	sealed, err := crypto.Seal(pair, password)
	if err != nil {
		return err
	}
	sig, err := pair.Sign([]byte(username))
	if err != nil {
		return err
	}

	state := c.state()
	pubSoul := models.PubSoul(pair.Pub)
	aliasSoul := models.AliasSoul(username)
	diff := graph.Diff{
		pubSoul: graph.NewNode(pubSoul).
			Set("alias", username, state).
			Set("pub", pair.Pub, state).
			Set("epub", pair.EPub, state).
			Set("auth", sealed.Ciphertext, state).
			Set("salt", sealed.Salt, state).
			Set("sig", sig, state),
		aliasSoul: graph.NewNode(aliasSoul).Set(pubSoul, graph.Link{Soul: pubSoul}, state),
	}
	if err := c.graph.Put(ctx, diff); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	c.logger.Info().Str("user", username).Msg("user created")

	return c.Login(ctx, username, password)
}

// Login opens the stored pair for username with password.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if err := checkCredentials(username, password); err != nil {
		return err
	}

	alias, err := c.graph.Get(ctx, models.AliasSoul(username))
	if err != nil {
		return err
	}
	if alias == nil {
		return ErrWrongCredentials
	}

	for _, field := range alias.Fields() {
		soul, ok := alias.Link(field)
		if !ok {
			continue
		}
		ident, err := c.graph.Get(ctx, soul)
		if err != nil {
			return err
		}
		if ident == nil {
			continue
		}
		sealed := &crypto.Sealed{Ciphertext: ident.String("auth"), Salt: ident.String("salt")}
		pair, err := crypto.Open(sealed, password)
		if err != nil {
			continue
		}
		if pair.Pub != ident.String("pub") || models.PubSoul(pair.Pub) != soul {
			continue
		}
		return c.begin(ctx, username, pair)
	}
	return ErrWrongCredentials
}

// Restore logs in from the saved session without credentials.
func (c *Client) Restore(ctx context.Context) error {
	s, err := c.sessions.Load()
	if err != nil {
		return err
	}
	if s.Empty() {
		return ErrNotLoggedIn
	}

	var pair crypto.KeyPair
	if err := json.Unmarshal([]byte(s.Pair), &pair); err != nil {
		return fmt.Errorf("%w: %v", crypto.ErrInvalidPair, err)
	}
	if err := pair.Validate(); err != nil {
		return err
	}

	pubSoul := models.PubSoul(pair.Pub)
	ident, err := c.graph.Get(ctx, pubSoul)
	if err != nil {
		return err
	}
	if ident == nil || ident.String("alias") != s.Username {
		return ErrWrongCredentials
	}
	alias, err := c.graph.Get(ctx, models.AliasSoul(s.Username))
	if err != nil {
		return err
	}
	if alias == nil {
		return ErrWrongCredentials
	}
	if link, ok := alias.Link(pubSoul); !ok || link != pubSoul {
		return ErrWrongCredentials
	}

	c.logger.Info().Str("user", s.Username).Msg("session restored")
	return c.begin(ctx, s.Username, &pair)
}

// Logout stops the heartbeat, writes an offline presence record and clears the session.
func (c *Client) Logout(ctx context.Context) error {
	username := c.Username()
	if username == "" {
		return ErrNotLoggedIn
	}
	c.stopHeartbeat()

	offline := models.Presence{Username: username, Online: false, LastSeen: c.now().UnixMilli()}
	perr := c.writePresence(ctx, offline)

	c.mu.Lock()
	c.username = ""
	c.pair = nil
	c.mu.Unlock()

	if err := c.sessions.Clear(); err != nil {
		return err
	}
	return perr
}

// begin marks the client logged in, saves the session and starts the heartbeat.
func (c *Client) begin(ctx context.Context, username string, pair *crypto.KeyPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	if err := c.sessions.Save(Session{Username: username, Pair: string(data)}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	c.stopHeartbeat()
	c.mu.Lock()
	c.username = username
	c.pair = pair
	c.mu.Unlock()

	c.startHeartbeat(ctx)
	return nil
}

func checkCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return errors.New("username and password are required")
	}
	if strings.ContainsAny(username, "/~") {
		return errors.New("username may not contain '/' or '~'")
	}
	return nil
}
