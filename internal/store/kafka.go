package store

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// KafkaJournal appends every accepted node change to a topic, keyed by soul.
type KafkaJournal struct {
	writer *kafka.Writer
}

// journalEntry is the value of one journal record.
type journalEntry struct {
	Origin string      `json:"origin"`
	Node   *graph.Node `json:"node"`
	At     int64       `json:"at"`
}

// NewKafkaJournal creates a journal writer.
func NewKafkaJournal(brokers []string, topic string) *KafkaJournal {
	return &KafkaJournal{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// Publish writes one record per changed node.
func (j *KafkaJournal) Publish(ctx context.Context, origin string, diff graph.Diff) error {
	now := time.Now()
	msgs := make([]kafka.Message, 0, len(diff))
	for soul, node := range diff {
		if node == nil {
			continue
		}
		value, err := json.Marshal(journalEntry{Origin: origin, Node: node, At: now.UnixMilli()})
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(soul), Value: value, Time: now})
	}
	if len(msgs) == 0 {
		return nil
	}
	return j.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (j *KafkaJournal) Close() error {
	return j.writer.Close()
}
