// Package render formats messages for a terminal.
package render

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/AaravAtGit/DecentChat/internal/models"
)

// Line renders one message as "[15:04:05] sender: text" in loc (time.Local when nil).
func Line(msg models.Message, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	ts := time.UnixMilli(msg.Timestamp).In(loc).Format("15:04:05")
	return fmt.Sprintf("[%s] %s: %s", ts, Sender(msg.Sender), Body(msg))
}

// Body renders the payload; media becomes "[image] <url>".
func Body(msg models.Message) string {
	if msg.Type == models.TypeMedia {
		return "[image] " + msg.Content
	}
	return msg.Text
}

// Sender returns the display name for a sender, "Unknown" when empty.
func Sender(sender string) string {
	if strings.TrimSpace(sender) == "" {
		return "Unknown"
	}
	return sender
}

// Avatar returns the upper-cased first rune of sender, or "?".
func Avatar(sender string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(sender))
	if r == utf8.RuneError {
		return "?"
	}
	return string(unicode.ToUpper(r))
}

// Timeline renders messages one per line.
func Timeline(msgs []models.Message, loc *time.Location) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(Line(m, loc))
		b.WriteByte('\n')
	}
	return b.String()
}
