package wire

import (
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

func TestDecodeBatch(t *testing.T) {
	frames, err := Decode([]byte(`[{"#":"1","get":{"#":"messages"}},{"#":"2","get":{"#":"users",".":"alice"}}]`))
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, len(frames), 2)
	assert.Equal(t, frames[0].Get.Soul, "messages")
	assert.Equal(t, frames[1].Get.Field, "alice")
}

func TestPutSurvivesEncoding(t *testing.T) {
	in := &Frame{ID: NewID(), Put: graph.Diff{
		"users": graph.NewNode("users").Set("initialized", true, 1),
	}}
	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}

	frames, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	out := frames[0]
	assert.Equal(t, out.ID, in.ID)
	assert.Equal(t, out.Put["users"].Bool("initialized"), true)
}

func TestNotFoundReplyKeepsNullNode(t *testing.T) {
	frames, err := Decode([]byte(`{"@":"abc","put":{"missing":null}}`))
	if err != nil {
		t.Fatal(err)
	}
	node, ok := frames[0].Put["missing"]
	assert.Equal(t, ok, true)
	if node != nil {
		t.Fatalf("expected nil node, got %+v", node)
	}
}
