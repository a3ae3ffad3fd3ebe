package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/skillminer/memoryd/internal/ltm"
	"github.com/skillminer/memoryd/internal/memory"
)

// Repository stores long-term memory records in SQLite. Embeddings are kept
// as little-endian float32 blobs; the in-process scan ranks them.
type Repository struct {
	db *sql.DB
}

var _ ltm.Repository = (*Repository)(nil)

const recordColumns = `id, owner_id, session_id, turn_id, role, text, embedding, entities, created_at`

// Put inserts rec.
func (r *Repository) Put(ctx context.Context, rec memory.Record) error {
	ents, err := json.Marshal(rec.Entities)
	if err != nil {
		return fmt.Errorf("sqlite: marshal entities: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`, dims)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OwnerID, rec.SessionID, rec.TurnID, string(rec.Role), rec.Text,
		encodeVector(rec.Embedding), string(ents), createdAt.UnixNano(), len(rec.Embedding),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert record: %w", err)
	}
	return nil
}

// Get returns one record of an owner.
func (r *Repository) Get(ctx context.Context, ownerID, id string) (memory.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE owner_id = ? AND id = ?`, ownerID, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return memory.Record{}, fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}
	return rec, err
}

// ListByOwner returns the owner's records newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE owner_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// ListMissingEmbeddings returns records without an embedding, oldest first.
func (r *Repository) ListMissingEmbeddings(ctx context.Context, limit int) ([]memory.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE embedding IS NULL
		ORDER BY created_at, id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list missing embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanRecords(rows)
}

// SetEmbedding fills in a missing embedding. Records that already have one
// are left alone.
func (r *Repository) SetEmbedding(ctx context.Context, id string, emb []float32) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records SET embedding = ?, dims = ? WHERE id = ? AND embedding IS NULL`,
		encodeVector(emb), len(emb), id)
	if err != nil {
		return fmt.Errorf("sqlite: set embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM records WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("sqlite: set embedding: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
		}
	}
	return nil
}

// DeleteOwner removes every record of an owner.
func (r *Repository) DeleteOwner(ctx context.Context, ownerID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete owner: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteTurn removes the records derived from turnID.
func (r *Repository) DeleteTurn(ctx context.Context, ownerID, turnID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE owner_id = ? AND turn_id = ?`, ownerID, turnID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete turn: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of stored records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count records: %w", err)
	}
	return n, nil
}

// Ping checks the connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (memory.Record, error) {
	var (
		rec      memory.Record
		role     string
		blob     []byte
		entities string
		created  int64
	)
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.SessionID, &rec.TurnID, &role, &rec.Text, &blob, &entities, &created); err != nil {
		return memory.Record{}, err
	}
	rec.Role = memory.Role(role)
	rec.CreatedAt = time.Unix(0, created).UTC()

	vec, err := decodeVector(blob)
	if err != nil {
		return memory.Record{}, fmt.Errorf("sqlite: record %s: %w", rec.ID, err)
	}
	rec.Embedding = vec

	if entities != "" && entities != "null" {
		if err := json.Unmarshal([]byte(entities), &rec.Entities); err != nil {
			return memory.Record{}, fmt.Errorf("sqlite: record %s entities: %w", rec.ID, err)
		}
	}
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]memory.Record, error) {
	var out []memory.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate records: %w", err)
	}
	return out, nil
}

// encodeVector returns nil for an empty vector so the column stays NULL.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
