package docdb

import (
	"context"
	"encoding/json"
	"fmt"
)

// PutReplicated stores a revision that was produced elsewhere, keeping its
// rev as is. The incoming revision is applied only when it beats the current
// one (see RevWins); the result reports whether it was applied. origin tags
// the stored row so the replicator can skip echoing it back.
func (d *DB) PutReplicated(ctx context.Context, doc Doc, origin string) (bool, error) {
	if doc.ID == "" || Generation(doc.Rev) == 0 {
		return false, fmt.Errorf("put replicated %q: invalid id or rev %q", doc.ID, doc.Rev)
	}
	body := doc.Body
	if doc.Deleted || len(body) == 0 {
		body = json.RawMessage(`{}`)
	}
	if !json.Valid(body) {
		return false, fmt.Errorf("put replicated %s: body is not valid JSON", doc.ID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false, ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin put replicated: %w", err)
	}
	defer tx.Rollback()

	cur, exists, err := currentTx(ctx, tx, doc.ID)
	if err != nil {
		return false, err
	}
	if exists && !RevWins(doc.Rev, cur.Rev) {
		return false, nil
	}

	stored := Doc{ID: doc.ID, Rev: doc.Rev, Deleted: doc.Deleted, Body: body, Origin: origin}
	if err := writeTx(ctx, tx, &stored); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit put replicated: %w", err)
	}

	d.publish(stored)
	return true, nil
}
