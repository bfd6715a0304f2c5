package store

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// ScyllaStore keeps nodes in ScyllaDB/Cassandra. Each field is written with
// USING TIMESTAMP derived from its state, so the cluster's own last-write-wins
// resolves concurrent relays.
type ScyllaStore struct {
	session *gocql.Session
}

// NewScyllaStore connects to the cluster and creates the nodes table. The keyspace must exist.
func NewScyllaStore(ctx context.Context, hosts []string, keyspace string) (*ScyllaStore, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second

	// Retry policy
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	err = session.Query(`
		CREATE TABLE IF NOT EXISTS nodes (
			soul text,
			field text,
			value text,
			state double,
			PRIMARY KEY (soul, field)
		)
	`).WithContext(ctx).Exec()
	if err != nil {
		session.Close()
		return nil, err
	}

	return &ScyllaStore{session: session}, nil
}

// Close closes the session.
func (s *ScyllaStore) Close() {
	s.session.Close()
}

// Ping runs a trivial query against the cluster.
func (s *ScyllaStore) Ping(ctx context.Context) error {
	var now time.Time
	return s.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Scan(&now)
}

// PutNode writes every field with a write timestamp of state in microseconds.
func (s *ScyllaStore) PutNode(ctx context.Context, node *graph.Node) error {
	defer observe(time.Now(), "scylla")

	rows, err := encodeRows(node)
	if err != nil {
		return err
	}

	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, r := range rows {
		batch.Query(`INSERT INTO nodes (soul, field, value, state) VALUES (?, ?, ?, ?) USING TIMESTAMP ?`,
			node.Soul, r.field, r.value, r.state, writeTimestamp(r.state))
	}
	return s.session.ExecuteBatch(batch)
}

// GetNode retrieves a node by soul. Returns nil when the soul is unknown.
func (s *ScyllaStore) GetNode(ctx context.Context, soul string) (*graph.Node, error) {
	defer observe(time.Now(), "scylla")

	iter := s.session.Query(`SELECT field, value, state FROM nodes WHERE soul = ?`, soul).
		WithContext(ctx).Iter()

	var rows []row
	var r row
	for iter.Scan(&r.field, &r.value, &r.state) {
		rows = append(rows, r)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return decodeRows(soul, rows)
}

// CountNodes counts distinct partitions with a full partition-key scan.
func (s *ScyllaStore) CountNodes(ctx context.Context) (int64, error) {
	iter := s.session.Query(`SELECT DISTINCT soul FROM nodes`).WithContext(ctx).Iter()

	var count int64
	var soul string
	for iter.Scan(&soul) {
		count++
	}
	return count, iter.Close()
}

func writeTimestamp(state float64) int64 {
	return int64(state * 1000)
}
