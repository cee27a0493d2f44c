package vecstore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askmysite/askmysite/internal/rag"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool used for the vector table.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// PostgresIndex stores chunk embeddings in a pgvector-enabled table.
type PostgresIndex struct {
	pool  queryPool
	table string
}

// NewPostgresIndex creates a Postgres-backed index using the provided config.
func NewPostgresIndex(ctx context.Context, cfg PostgresConfig) (*PostgresIndex, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "chunks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresIndex{
		pool:  pool,
		table: table,
	}, nil
}

// NewPostgresIndexWithPool constructs an index from an existing pool (primarily for testing).
func NewPostgresIndexWithPool(pool queryPool, table string) (*PostgresIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "chunks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresIndex{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (p *PostgresIndex) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// EnsureSchema creates the vector extension and the chunk table if missing.
// The embedding dimension is fixed at table creation time.
func (p *PostgresIndex) EnsureSchema(ctx context.Context, dimensions int) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("postgres index is not configured")
	}
	if dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	chunk_id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	embedding vector(%d) NOT NULL
)`, p.table, dimensions)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create chunk table: %w", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_job_id_idx ON %s (job_id)`, p.table, p.table)
	if _, err := p.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("create job index: %w", err)
	}
	return nil
}

// Add upserts chunks into the job's rows. Re-adding a chunk ID overwrites the
// stored row.
func (p *PostgresIndex) Add(ctx context.Context, jobID string, chunks []StoredChunk) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("postgres index is not configured")
	}
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (chunk_id, job_id, url, title, content, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (chunk_id) DO UPDATE SET
	job_id = EXCLUDED.job_id,
	url = EXCLUDED.url,
	title = EXCLUDED.title,
	content = EXCLUDED.content,
	embedding = EXCLUDED.embedding`, p.table)
	for _, chunk := range chunks {
		args := []any{
			chunk.ChunkID,
			jobID,
			chunk.URL,
			chunk.Title,
			chunk.Text,
			vectorLiteral(chunk.Embedding),
		}
		if _, err := p.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", chunk.ChunkID, err)
		}
	}
	return nil
}

// Query returns the topK nearest chunks for the job by cosine distance.
func (p *PostgresIndex) Query(ctx context.Context, jobID string, embedding []float32, topK int) ([]rag.RetrievedChunk, error) {
	if p == nil || p.pool == nil {
		return nil, fmt.Errorf("postgres index is not configured")
	}
	if topK <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
SELECT chunk_id, content, url, title, embedding <=> $2 AS distance
FROM %s
WHERE job_id = $1
ORDER BY distance ASC
LIMIT $3`, p.table)

	rows, err := p.pool.Query(ctx, query, jobID, vectorLiteral(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []rag.RetrievedChunk
	for rows.Next() {
		var chunk rag.RetrievedChunk
		if err := rows.Scan(&chunk.ChunkID, &chunk.Text, &chunk.Metadata.URL, &chunk.Metadata.Title, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		chunk.IsDistance = true
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk rows: %w", err)
	}
	return out, nil
}

// vectorLiteral renders a float32 slice in pgvector's input syntax.
func vectorLiteral(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
