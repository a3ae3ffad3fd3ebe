package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
)

// Repository persists long-term memory records in PostgreSQL with pgvector.
// Its Index answers similarity queries inside the database.
type Repository struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

var (
	_ ltm.Repository = (*Repository)(nil)
	_ ltm.Index      = (*Index)(nil)
)

// Open connects to the database and creates the schema.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	r := &Repository{pool: pool, table: cfg.Table, dims: cfg.Dimensions}
	if err := r.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
			id         TEXT PRIMARY KEY,
			owner_id   TEXT NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			turn_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			text       TEXT NOT NULL,
			embedding  vector(%[2]d),
			entities   JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL
		)`, r.table, r.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_owner ON %[1]s (owner_id, created_at DESC)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_turn ON %[1]s (owner_id, turn_id)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_embedding ON %[1]s USING hnsw (embedding vector_cosine_ops)`, r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const recordColumns = `id, owner_id, session_id, turn_id, role, text, embedding::text, entities, created_at`

// Put inserts rec.
func (r *Repository) Put(ctx context.Context, rec memory.Record) error {
	ents, err := json.Marshal(rec.Entities)
	if err != nil {
		return fmt.Errorf("postgres: marshal entities: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	var vec *string
	if rec.Embedded() {
		if len(rec.Embedding) != r.dims {
			return fmt.Errorf("postgres: embedding has %d dimensions, column has %d", len(rec.Embedding), r.dims)
		}
		s := formatVector(rec.Embedding)
		vec = &s
	}

	_, err = r.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, session_id, turn_id, role, text, embedding, entities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8::jsonb, $9)`, r.table),
		rec.ID, rec.OwnerID, rec.SessionID, rec.TurnID, string(rec.Role), rec.Text,
		vec, string(ents), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert record: %w", err)
	}
	return nil
}

// Get returns one record of an owner.
func (r *Repository) Get(ctx context.Context, ownerID, id string) (memory.Record, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE owner_id = $1 AND id = $2`, recordColumns, r.table), ownerID, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Record{}, fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}
	return rec, err
}

// ListByOwner returns the owner's records newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]memory.Record, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, recordColumns, r.table),
		ownerID, lim,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	return collectRecords(rows)
}

// ListMissingEmbeddings returns records without an embedding, oldest first.
func (r *Repository) ListMissingEmbeddings(ctx context.Context, limit int) ([]memory.Record, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE embedding IS NULL
		ORDER BY created_at, id
		LIMIT $1`, recordColumns, r.table),
		lim,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list missing embeddings: %w", err)
	}
	return collectRecords(rows)
}

// SetEmbedding fills in a missing embedding.
func (r *Repository) SetEmbedding(ctx context.Context, id string, emb []float32) error {
	if len(emb) != r.dims {
		return fmt.Errorf("postgres: embedding has %d dimensions, column has %d", len(emb), r.dims)
	}
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET embedding = $2::vector WHERE id = $1 AND embedding IS NULL`, r.table),
		id, formatVector(emb))
	if err != nil {
		return fmt.Errorf("postgres: set embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.table), id).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: set embedding: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
		}
	}
	return nil
}

// DeleteOwner removes every record of an owner.
func (r *Repository) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1`, r.table), ownerID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete owner: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteTurn removes the records derived from turnID.
func (r *Repository) DeleteTurn(ctx context.Context, ownerID, turnID string) (int, error) {
	tag, err := r.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1 AND turn_id = $2`, r.table), ownerID, turnID)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete turn: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Index returns the pgvector similarity index over the same table.
func (r *Repository) Index() *Index {
	return &Index{repo: r}
}

// Index answers similarity queries with pgvector's cosine distance operator.
// Records live in the repository table, so writes and deletes are no-ops
// beyond filling a missing vector.
type Index struct {
	repo *Repository
}

// Upsert fills in the record's vector if the stored row has none.
func (x *Index) Upsert(ctx context.Context, rec memory.Record) error {
	if !rec.Embedded() {
		return nil
	}
	err := x.repo.SetEmbedding(ctx, rec.ID, rec.Embedding)
	if errors.Is(err, memory.ErrNotFound) {
		return x.repo.Put(ctx, rec)
	}
	return err
}

// Query returns the owner's nearest records with similarity >= threshold.
func (x *Index) Query(ctx context.Context, ownerID string, vector []float32, topK int, threshold float64) ([]memory.Result, error) {
	if len(vector) != x.repo.dims {
		return nil, fmt.Errorf("postgres: query has %d dimensions, column has %d", len(vector), x.repo.dims)
	}
	rows, err := x.repo.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $2::vector) AS similarity
		FROM %s
		WHERE owner_id = $1
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2::vector) >= $3
		ORDER BY embedding <=> $2::vector, created_at DESC
		LIMIT $4`, recordColumns, x.repo.table),
		ownerID, formatVector(vector), threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: similarity query: %w", err)
	}
	defer rows.Close()

	var out []memory.Result
	for rows.Next() {
		var sim float64
		rec, err := scanRecordWith(rows, &sim)
		if err != nil {
			return nil, err
		}
		out = append(out, memory.Result{Record: rec, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate similarity rows: %w", err)
	}
	return out, nil
}

// DeleteOwner is a no-op: the repository delete already removed the rows.
func (x *Index) DeleteOwner(context.Context, string) error { return nil }

// DeleteTurn is a no-op: the repository delete already removed the rows.
func (x *Index) DeleteTurn(context.Context, string, string) error { return nil }

// BackedByRepository reports that queries read the records table directly.
func (x *Index) BackedByRepository() bool { return true }

func scanRecord(row pgx.Row) (memory.Record, error) {
	return scanRecordWith(row)
}

func scanRecordWith(row pgx.Row, extra ...any) (memory.Record, error) {
	var (
		rec      memory.Record
		role     string
		vec      *string
		entities []byte
	)
	dest := append([]any{&rec.ID, &rec.OwnerID, &rec.SessionID, &rec.TurnID, &role, &rec.Text, &vec, &entities, &rec.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return memory.Record{}, err
	}
	rec.Role = memory.Role(role)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if vec != nil {
		v, err := parseVector(*vec)
		if err != nil {
			return memory.Record{}, fmt.Errorf("postgres: record %s: %w", rec.ID, err)
		}
		rec.Embedding = v
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &rec.Entities); err != nil {
			return memory.Record{}, fmt.Errorf("postgres: record %s entities: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func collectRecords(rows pgx.Rows) ([]memory.Record, error) {
	defer rows.Close()
	var out []memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate records: %w", err)
	}
	return out, nil
}
