package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/metrics"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/relay.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/relay.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		soul TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		state REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (soul, field)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_updated ON nodes(updated_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutNode upserts every field of node, keeping the higher state.
func (s *SQLiteStore) PutNode(ctx context.Context, node *graph.Node) error {
	defer observe(time.Now(), "sqlite")

	rows, err := encodeRows(node)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nodes (soul, field, value, state, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(soul, field) DO UPDATE SET
			value = excluded.value,
			state = excluded.state,
			updated_at = excluded.updated_at
		WHERE excluded.state > nodes.state
			OR (excluded.state = nodes.state AND excluded.value > nodes.value)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, node.Soul, r.field, r.value, r.state); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetNode retrieves a node by soul. Returns nil when the soul is unknown.
func (s *SQLiteStore) GetNode(ctx context.Context, soul string) (*graph.Node, error) {
	defer observe(time.Now(), "sqlite")

	rs, err := s.db.QueryContext(ctx, `
		SELECT field, value, state FROM nodes WHERE soul = ?
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
func (s *SQLiteStore) CountNodes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT soul) FROM nodes`).Scan(&count)
	return count, err
}

func observe(start time.Time, backend string) {
	metrics.StoreLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())
}
