package practice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the practice_sessions table. Execute it via
// [PostgresRepository.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS practice_sessions (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    data        JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_practice_sessions_created ON practice_sessions(created_at);
`

// DB is the database interface used by [PostgresRepository]. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRepository is a [Repository] backed by PostgreSQL. Each session
// is stored whole as a JSONB document.
type PostgresRepository struct {
	db DB
}

// Compile-time check that PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository on db. The caller is
// responsible for calling [PostgresRepository.Migrate] before use.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the practice_sessions table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("practice: migrate: %w", err)
	}
	return nil
}

// Save upserts the session.
func (r *PostgresRepository) Save(ctx context.Context, session *Session) error {
	snapshot := session.Clone()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("practice: marshal session: %w", err)
	}

	const query = `
		INSERT INTO practice_sessions (id, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		snapshot.ID, string(snapshot.Status), data, snapshot.CreatedAt, snapshot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("practice: save %q: %w", snapshot.ID, err)
	}
	return nil
}

// FindByID retrieves a session by its ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM practice_sessions WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("practice: get %q: %w", id, err)
	}
	return decodeSession(data)
}

// List returns all sessions ordered by creation time.
func (r *PostgresRepository) List(ctx context.Context) ([]*Session, error) {
	rows, err := r.db.Query(ctx, `SELECT data FROM practice_sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("practice: list: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("practice: scan: %w", err)
		}
		s, err := decodeSession(data)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("practice: list rows: %w", err)
	}
	return result, nil
}

// Delete removes a session.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM practice_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("practice: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("practice: unmarshal session: %w", err)
	}
	return &s, nil
}
