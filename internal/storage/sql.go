package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLBackend keeps documents as rows of the migrated documents table. Writes
// without a base revision are upserts, writes with one a conditional update.
// The revision column holds the blob sha of the content so revisions line up
// with the other backends.
type SQLBackend struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewSQLBackend wraps an open, migrated database. driver is "postgres" or "sqlite".
func NewSQLBackend(db *sql.DB, driver string) *SQLBackend {
	return &SQLBackend{db: db, driver: driver, now: time.Now}
}

// rebind rewrites ? placeholders to $n for postgres.
func (b *SQLBackend) rebind(query string) string {
	if b.driver != BackendPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (b *SQLBackend) Read(ctx context.Context, key string) Result {
	var content, revision string
	err := b.db.QueryRowContext(ctx,
		b.rebind(`SELECT content, revision FROM documents WHERE doc_key = ?`), key,
	).Scan(&content, &revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return missing()
		}
		return failed(fmt.Errorf("failed to read document %s: %w", key, err))
	}
	return found([]byte(content), revision)
}

func (b *SQLBackend) Write(ctx context.Context, key string, data []byte, base, _ string) (string, error) {
	revision := BlobSHA(data)
	if base != "" {
		if err := b.update(ctx, key, data, base, revision); err != nil {
			return "", err
		}
		return revision, nil
	}

	query := `
		INSERT INTO documents (doc_key, content, revision, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (doc_key) DO UPDATE
		SET content = excluded.content, revision = excluded.revision, updated_at = excluded.updated_at`

	_, err := b.db.ExecContext(ctx, b.rebind(query), key, string(data), revision, b.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to write document %s: %w", key, err)
	}
	return revision, nil
}

// update replaces the row only while it still holds base.
func (b *SQLBackend) update(ctx context.Context, key string, data []byte, base, revision string) error {
	res, err := b.db.ExecContext(ctx, b.rebind(`
		UPDATE documents SET content = ?, revision = ?, updated_at = ?
		WHERE doc_key = ? AND revision = ?`),
		string(data), revision, b.now().UTC(), key, base)
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("document %s changed since revision %s: %w", key, base, ErrConflict)
	}
	return nil
}

func (b *SQLBackend) Delete(ctx context.Context, key string, _ string) error {
	if _, err := b.db.ExecContext(ctx, b.rebind(`DELETE FROM documents WHERE doc_key = ?`), key); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	return nil
}

func (b *SQLBackend) List(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT doc_key FROM documents ORDER BY doc_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan document key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return keys, nil
}
