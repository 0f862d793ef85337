package docdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetLocal returns the value stored under key. Local entries are never
// replicated and never appear in the change feed. A missing key returns "".
func (d *DB) GetLocal(ctx context.Context, key string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM local WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get local %s: %w", key, err)
	}
	return value, nil
}

// PutLocal stores value under key, replacing any previous value.
func (d *DB) PutLocal(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO local (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("put local %s: %w", key, err)
	}
	return nil
}
