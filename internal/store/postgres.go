package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AaravAtGit/DecentChat/internal/graph"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS nodes (
			soul TEXT NOT NULL,
			field TEXT NOT NULL,
			value TEXT NOT NULL,
			state DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (soul, field)
		)
	`)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutNode upserts every field of node in one batch, keeping the higher state.
func (s *PostgresStore) PutNode(ctx context.Context, node *graph.Node) error {
	defer observe(time.Now(), "postgres")

	rows, err := encodeRows(node)
	if err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO nodes (soul, field, value, state)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (soul, field) DO UPDATE SET
				value = EXCLUDED.value,
				state = EXCLUDED.state,
				updated_at = now()
			WHERE EXCLUDED.state > nodes.state
				OR (EXCLUDED.state = nodes.state AND EXCLUDED.value COLLATE "C" > nodes.value COLLATE "C")
		`, node.Soul, r.field, r.value, r.state)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// GetNode retrieves a node by soul. Returns nil when the soul is unknown.
func (s *PostgresStore) GetNode(ctx context.Context, soul string) (*graph.Node, error) {
	defer observe(time.Now(), "postgres")

	rs, err := s.pool.Query(ctx, `
		SELECT field, value, state FROM nodes WHERE soul = $1
	`, soul)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var rows []row
	for rs.Next() {
		var r row
		if err := rs.Scan(&r.field, &r.value, &r.state); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return decodeRows(soul, rows)
}

// CountNodes returns the number of distinct souls stored.
func (s *PostgresStore) CountNodes(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT soul) FROM nodes`).Scan(&count)
	return count, err
}
