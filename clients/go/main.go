// DecentChat CLI - terminal client for a DecentChat relay
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/AaravAtGit/DecentChat/clients/go/decentchat"
	"github.com/AaravAtGit/DecentChat/internal/config"
	"github.com/AaravAtGit/DecentChat/internal/media"
	"github.com/AaravAtGit/DecentChat/internal/models"
	"github.com/AaravAtGit/DecentChat/internal/peer"
	"github.com/AaravAtGit/DecentChat/internal/render"
)

const version = "0.1.0"

const usage = `DecentChat CLI.

Usage:
    decentchat signup <username> [--password=<password>] [-v]
    decentchat login <username> [--password=<password>] [-v]
    decentchat logout [-v]
    decentchat whoami [-v]
    decentchat send [--channel=<channel>] [-v] <text>...
    decentchat upload [--channel=<channel>] [-v] <file>
    decentchat read [--channel=<channel>] [-v]
    decentchat tail [--channel=<channel>] [-v]
    decentchat channels [-v]
    decentchat create-channel <name> [-v]
    decentchat online [-v]
    decentchat profile [<username>] [-v]
    decentchat set-profile --display-name=<name> [--picture=<url>] [-v]
    decentchat -h | --help
    decentchat --version

Options:
    -h --help                Show this screen.
    --version                Show version.
    -v --verbose             Log connection details to stderr.
    --password=<password>    Password; prompted for when omitted.
    --channel=<channel>      Channel name [default: general].
    --display-name=<name>    Display name shown to others.
    --picture=<url>          Profile picture URL.

Environment:
    DECENTCHAT_RELAY         Relay URL (default: ws://localhost:8765/gun)
    DECENTCHAT_CONFIG        Session directory (default: ~/.decentchat)
    PINATA_JWT               Pinata JWT, or PINATA_API_KEY + PINATA_SECRET_API_KEY
    PINATA_GATEWAY           Gateway for uploaded files`

const requestTimeout = 30 * time.Second

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	exitOnError(err)

	cfg := config.LoadClient()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
	if verbose, _ := opts.Bool("--verbose"); verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	conn, err := peer.Dial(dialCtx, cfg.RelayURL, peer.WithLogger(logger))
	cancel()
	exitOnError(err)
	defer conn.Close()

	clientOpts := []decentchat.Option{
		decentchat.WithLogger(logger),
		decentchat.WithSessionStore(decentchat.NewFileSessionStore(cfg.ConfigDir)),
	}
	if cfg.HasPinata() {
		clientOpts = append(clientOpts, decentchat.WithUploader(
			media.NewPinataUploader(cfg.PinataAPIKey, cfg.PinataSecretKey, cfg.PinataJWT, cfg.PinataGateway)))
	}
	client := decentchat.New(conn, clientOpts...)
	defer client.Close()

	channel, _ := opts.String("--channel")

	switch {
	case flag(opts, "signup"):
		username, _ := opts.String("<username>")
		exitOnError(client.SignUp(ctx, username, password(opts)))
		fmt.Printf("Signed up as %s\n", username)

	case flag(opts, "login"):
		username, _ := opts.String("<username>")
		exitOnError(client.Login(ctx, username, password(opts)))
		fmt.Printf("Logged in as %s\n", username)

	case flag(opts, "logout"):
		restore(ctx, client)
		exitOnError(client.Logout(ctx))
		fmt.Println("Logged out")

	case flag(opts, "whoami"):
		restore(ctx, client)
		fmt.Printf("%s (%s)\n", client.Username(), client.Pub())

	case flag(opts, "send"):
		restore(ctx, client)
		words := opts["<text>"].([]string)
		msg, err := client.Send(ctx, channel, strings.Join(words, " "))
		exitOnError(err)
		fmt.Println(render.Line(msg, nil))

	case flag(opts, "upload"):
		restore(ctx, client)
		path, _ := opts.String("<file>")
		f, err := os.Open(path)
		exitOnError(err)
		defer f.Close()
		info, err := f.Stat()
		exitOnError(err)
		msg, err := client.SendMedia(ctx, channel, info.Name(), f, info.Size())
		exitOnError(err)
		fmt.Println(render.Line(msg, nil))

	case flag(opts, "read"):
		msgs, err := client.Messages(ctx, channel)
		exitOnError(err)
		fmt.Print(render.Timeline(msgs, nil))

	case flag(opts, "tail"):
		restore(ctx, client)
		tail(ctx, client, channel)

	case flag(opts, "channels"):
		list, err := client.Channels(ctx)
		exitOnError(err)
		for _, ch := range list {
			fmt.Printf("  #%-20s by %s\n", ch.Name, render.Sender(ch.CreatedBy))
		}

	case flag(opts, "create-channel"):
		restore(ctx, client)
		name, _ := opts.String("<name>")
		ch, err := client.CreateChannel(ctx, name)
		exitOnError(err)
		fmt.Printf("Created #%s\n", ch.Name)

	case flag(opts, "online"):
		users, err := client.OnlineUsers(ctx)
		exitOnError(err)
		for _, u := range users {
			fmt.Printf("  [%s] %s\n", render.Avatar(u), u)
		}

	case flag(opts, "profile"):
		username, _ := opts.String("<username>")
		if username == "" {
			restore(ctx, client)
			username = client.Username()
		}
		p, err := client.Profile(ctx, username)
		exitOnError(err)
		fmt.Printf("%s\n  display name: %s\n  picture: %s\n", p.Username, p.DisplayName, p.ProfilePicture)

	case flag(opts, "set-profile"):
		restore(ctx, client)
		name, _ := opts.String("--display-name")
		picture, _ := opts.String("--picture")
		p, err := client.UpdateProfile(ctx, name, picture)
		exitOnError(err)
		fmt.Printf("Profile saved: %s\n", p.DisplayName)
	}
}

// tail prints the channel and every new message until interrupted.
func tail(ctx context.Context, client *decentchat.Client, channel string) {
	printed := make(map[string]bool)
	updates := make(chan []models.Message, 16)

	tl := client.Subscribe(channel, func(msgs []models.Message) {
		select {
		case updates <- msgs:
		default:
		}
	})
	defer tl.Stop()

	tracker := client.TrackPresence(func(online []string) {
		fmt.Fprintf(os.Stderr, "online: %s\n", strings.Join(online, ", "))
	})
	defer tracker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			for _, m := range tl.Messages() {
				if !printed[m.ID] {
					printed[m.ID] = true
					fmt.Println(render.Line(m, nil))
				}
			}
		}
	}
}

func restore(ctx context.Context, client *decentchat.Client) {
	if err := client.Restore(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Not logged in; run `decentchat login <username>` first.")
		exitOnError(err)
	}
}

func password(opts docopt.Opts) string {
	if pw, err := opts.String("--password"); err == nil && pw != "" {
		return pw
	}
	fmt.Print("Enter password: ")
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	exitOnError(err)
	return string(pw)
}

func flag(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
