package descriptor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS descriptor_batches (
	name       TEXT PRIMARY KEY,
	run_id     UUID NOT NULL,
	dim        INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS descriptors (
	batch     TEXT NOT NULL REFERENCES descriptor_batches(name) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	frame_id  TEXT NOT NULL,
	idx       INTEGER NOT NULL,
	embedding vector NOT NULL,
	PRIMARY KEY (batch, position)
);
`

// PostgresStore persists descriptor batches in PostgreSQL with pgvector
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and verifies the database is reachable
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// InitSchema creates the vector extension and descriptor tables
func (p *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create descriptor schema: %w", err)
	}
	return nil
}

// Save replaces any batch stored under name
func (p *PostgresStore) Save(ctx context.Context, name string, s *Store) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM descriptor_batches WHERE name = $1`, name); err != nil {
		return fmt.Errorf("clear batch %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO descriptor_batches (name, run_id, dim, created_at) VALUES ($1, $2, $3, $4)`,
		name, uuid.New(), s.Dim(), time.Now().UTC()); err != nil {
		return fmt.Errorf("insert batch %s: %w", name, err)
	}

	for i, e := range s.Entries() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO descriptors (batch, position, frame_id, idx, embedding) VALUES ($1, $2, $3, $4, $5)`,
			name, i, e.ID, e.Index, pgvector.NewVector(e.Vector)); err != nil {
			return fmt.Errorf("insert descriptor %s: %w", e.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// Load returns the batch stored under name in its original order
func (p *PostgresStore) Load(ctx context.Context, name string) (*Store, error) {
	var dim int
	err := p.pool.QueryRow(ctx, `SELECT dim FROM descriptor_batches WHERE name = $1`, name).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", name, err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT frame_id, idx, embedding FROM descriptors WHERE batch = $1 ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	s := NewStore()
	for rows.Next() {
		var (
			id  string
			idx int
			vec pgvector.Vector
		)
		if err := rows.Scan(&id, &idx, &vec); err != nil {
			return nil, fmt.Errorf("scan descriptor: %w", err)
		}
		if err := s.Put(id, idx, vec.Slice()); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if s.Len() > 0 && s.Dim() != dim {
		return nil, fmt.Errorf("batch %s declares dim %d, rows have %d", name, dim, s.Dim())
	}
	return s, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
