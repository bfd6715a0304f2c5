package store

import (
	"context"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// NodeStore defines the interface for persistent storage of graph nodes.
// SQLiteStore, PostgresStore and ScyllaStore implement this interface.
// Writes are per field and keep the row with the higher state.
type NodeStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Node operations
	PutNode(ctx context.Context, node *graph.Node) error
	GetNode(ctx context.Context, soul string) (*graph.Node, error)
	CountNodes(ctx context.Context) (int64, error)
}

// row is one field of a node as kept by the SQL and CQL stores.
type row struct {
	field string
	value string
	state float64
}

func encodeRows(node *graph.Node) ([]row, error) {
	rows := make([]row, 0, len(node.Values))
	for _, f := range node.Fields() {
		v, err := graph.EncodeValue(node.Values[f])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row{field: f, value: v, state: node.States[f]})
	}
	return rows, nil
}

// decodeRows rebuilds a node; it returns nil when there are no rows.
func decodeRows(soul string, rows []row) (*graph.Node, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	node := graph.NewNode(soul)
	for _, r := range rows {
		v, err := graph.DecodeValue(r.value)
		if err != nil {
			return nil, err
		}
		node.Set(r.field, v, r.state)
	}
	return node, nil
}
