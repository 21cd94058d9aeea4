package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"awards/bot/internal/document"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open dials postgres with the pool limits we run everywhere.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// PostgresRemote keeps the document in a single jsonb row guarded by a
// revision counter. The conditional UPDATE on the revision is the same
// compare-and-swap the contents API gives us, so the Store's retry loop
// works unchanged.
type PostgresRemote struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresRemote {
	return &PostgresRemote{db: db}
}

// EnsureSchema creates the single-row table on first run.
func (r *PostgresRemote) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS award_documents (
			id INT PRIMARY KEY CHECK (id = 1),
			body JSONB NOT NULL,
			revision BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("create award_documents: %w", err)
	}
	return nil
}

func (r *PostgresRemote) Load(ctx context.Context) (document.Document, Version, error) {
	var body []byte
	var revision int64
	err := r.db.QueryRowContext(ctx, `SELECT body, revision FROM award_documents WHERE id = 1`).Scan(&body, &revision)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Document{}, "", ErrNotFound
	}
	if err != nil {
		return document.Document{}, "", fmt.Errorf("read document row: %w", err)
	}

	var doc document.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return document.Document{}, "", fmt.Errorf("decode document row: %w", err)
	}
	return doc, Version(strconv.FormatInt(revision, 10)), nil
}

func (r *PostgresRemote) Save(ctx context.Context, doc document.Document, version Version) (Version, error) {
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	if version == "" {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO award_documents (id, body, revision)
			VALUES (1, $1, 1)
			ON CONFLICT (id) DO NOTHING
		`, body)
		if err != nil {
			return "", fmt.Errorf("insert document row: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("insert document row: %w", err)
		}
		if affected == 0 {
			return "", ErrConflict
		}
		return Version("1"), nil
	}

	revision, err := strconv.ParseInt(string(version), 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse version %q: %w", version, err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE award_documents
		SET body = $1, revision = revision + 1, updated_at = NOW()
		WHERE id = 1 AND revision = $2
	`, body, revision)
	if err != nil {
		return "", fmt.Errorf("update document row: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("update document row: %w", err)
	}
	if affected == 0 {
		return "", ErrConflict
	}
	return Version(strconv.FormatInt(revision+1, 10)), nil
}
