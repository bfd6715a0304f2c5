package render

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/AaravAtGit/DecentChat/internal/models"
)

func TestLine(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 7, 3, 0, time.UTC).UnixMilli()

	text := models.Message{Type: models.TypeText, Text: "hello", Sender: "alice", Timestamp: ts}
	assert.Equal(t, Line(text, time.UTC), "[09:07:03] alice: hello")

	media := models.Message{Type: models.TypeMedia, Content: "https://gw/ipfs/Qm", Timestamp: ts}
	assert.Equal(t, Line(media, time.UTC), "[09:07:03] Unknown: [image] https://gw/ipfs/Qm")
}

func TestAvatar(t *testing.T) {
	assert.Equal(t, Avatar("bob"), "B")
	assert.Equal(t, Avatar("élodie"), "É")
	assert.Equal(t, Avatar(""), "?")
}

func TestTimeline(t *testing.T) {
	msgs := []models.Message{
		{Text: "a", Sender: "x", Timestamp: 0},
		{Text: "b", Sender: "y", Timestamp: 1000},
	}
	assert.Equal(t, Timeline(msgs, time.UTC), "[00:00:00] x: a\n[00:00:01] y: b\n")
}
