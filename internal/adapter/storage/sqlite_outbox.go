package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brickparty/brick-party/internal/core/domain"
)

const outboxSchema = `
CREATE TABLE IF NOT EXISTS outbox (
	id                TEXT PRIMARY KEY,
	user_id           TEXT NOT NULL,
	set_number        TEXT NOT NULL,
	inventory_key     TEXT NOT NULL,
	quantity          INTEGER NOT NULL,
	enable_cloud_sync INTEGER NOT NULL,
	attempt           INTEGER NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	created_at        INTEGER NOT NULL
);`

// SQLiteOutbox keeps owned changes that could not reach cloud storage, so
// they survive a restart.
type SQLiteOutbox struct {
	db *sql.DB
}

func OpenSQLiteOutbox(path string) (*SQLiteOutbox, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect outbox: %w", err)
	}

	// one writer; avoids SQLITE_BUSY between workers
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		outboxSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare outbox: %w", err)
		}
	}
	return &SQLiteOutbox{db: db}, nil
}

func (o *SQLiteOutbox) Close() error {
	return o.db.Close()
}

// Save inserts the change, or updates attempt and status if it is already
// queued. The original position is kept.
func (o *SQLiteOutbox) Save(ctx context.Context, change domain.OwnedChange) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO outbox (id, user_id, set_number, inventory_key, quantity, enable_cloud_sync, attempt, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET attempt = excluded.attempt, status = excluded.status`,
		change.ID, change.UserID, change.SetNumber, change.Key, change.Quantity,
		change.EnableCloudSync, change.Attempt, string(change.Status), change.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox change: %w", err)
	}
	return nil
}

func (o *SQLiteOutbox) Pending(ctx context.Context, limit int) ([]domain.OwnedChange, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT id, user_id, set_number, inventory_key, quantity, enable_cloud_sync, attempt, status, created_at
		FROM outbox ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []domain.OwnedChange
	for rows.Next() {
		var c domain.OwnedChange
		var status string
		var createdAt int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.SetNumber, &c.Key, &c.Quantity,
			&c.EnableCloudSync, &c.Attempt, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		c.Status = domain.OwnedChangeStatus(status)
		c.CreatedAt = time.Unix(0, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (o *SQLiteOutbox) MarkDone(ctx context.Context, id string) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete outbox change: %w", err)
	}
	return nil
}
