package docdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Doc is one stored document revision. Body is the JSON object stored under
// the id; it is empty ("{}") for tombstones.
type Doc struct {
	ID      string
	Rev     string
	Deleted bool
	Body    json.RawMessage
	Seq     int64
	// Origin names the replica a replicated write came from; empty for local
	// writes.
	Origin string
}

const docColumns = `id, rev, deleted, body, seq, origin`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoc(r rowScanner) (Doc, error) {
	var doc Doc
	var deleted int
	var body string
	if err := r.Scan(&doc.ID, &doc.Rev, &deleted, &body, &doc.Seq, &doc.Origin); err != nil {
		return Doc{}, err
	}
	doc.Deleted = deleted == 1
	doc.Body = json.RawMessage(body)
	return doc, nil
}

// Get returns the current revision of id, tombstones included.
func (d *DB) Get(ctx context.Context, id string) (Doc, error) {
	doc, err := scanDoc(d.db.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM docs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Doc{}, fmt.Errorf("get %s: %w", id, err)
	}
	return doc, nil
}

// Put writes body as a new revision of id. rev must name the current
// revision of a live document and must be empty for a new one. A tombstone
// may be recreated with an empty or matching rev.
func (d *DB) Put(ctx context.Context, id, rev string, body json.RawMessage) (Doc, error) {
	if id == "" {
		return Doc{}, fmt.Errorf("put: empty document id")
	}
	if !json.Valid(body) {
		return Doc{}, fmt.Errorf("put %s: body is not valid JSON", id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Doc{}, ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Doc{}, fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	cur, exists, err := currentTx(ctx, tx, id)
	if err != nil {
		return Doc{}, err
	}

	prev := ""
	switch {
	case !exists:
		if rev != "" {
			return Doc{}, fmt.Errorf("put %s: %w", id, ErrConflict)
		}
	case cur.Deleted:
		if rev != "" && rev != cur.Rev {
			return Doc{}, fmt.Errorf("put %s: %w", id, ErrConflict)
		}
		prev = cur.Rev
	default:
		if rev != cur.Rev {
			return Doc{}, fmt.Errorf("put %s: %w", id, ErrConflict)
		}
		prev = cur.Rev
	}

	doc := Doc{ID: id, Rev: nextRev(prev, false, body), Body: body}
	if err := writeTx(ctx, tx, &doc); err != nil {
		return Doc{}, err
	}
	if err := tx.Commit(); err != nil {
		return Doc{}, fmt.Errorf("commit put: %w", err)
	}

	d.publish(doc)
	return doc, nil
}

// Delete writes a tombstone revision for id.
func (d *DB) Delete(ctx context.Context, id, rev string) (Doc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return Doc{}, ErrClosed
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Doc{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	cur, exists, err := currentTx(ctx, tx, id)
	if err != nil {
		return Doc{}, err
	}
	if !exists || cur.Deleted {
		return Doc{}, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	if rev != cur.Rev {
		return Doc{}, fmt.Errorf("delete %s: %w", id, ErrConflict)
	}

	body := json.RawMessage(`{}`)
	doc := Doc{ID: id, Rev: nextRev(cur.Rev, true, body), Deleted: true, Body: body}
	if err := writeTx(ctx, tx, &doc); err != nil {
		return Doc{}, err
	}
	if err := tx.Commit(); err != nil {
		return Doc{}, fmt.Errorf("commit delete: %w", err)
	}

	d.publish(doc)
	return doc, nil
}

// AllDocs returns every live document ordered by id.
func (d *DB) AllDocs(ctx context.Context) ([]Doc, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+docColumns+` FROM docs WHERE deleted = 0 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Changes returns documents written after since, in sequence order, with
// tombstones. limit <= 0 means no limit.
func (d *DB) Changes(ctx context.Context, since int64, limit int) ([]Doc, error) {
	query := `SELECT ` + docColumns + ` FROM docs WHERE seq > ? ORDER BY seq`
	args := []any{since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	defer rows.Close()

	var docs []Doc
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// LastSeq returns the sequence of the most recent write, 0 when empty.
func (d *DB) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := d.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM docs`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}

// Count returns the number of live documents.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs WHERE deleted = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count docs: %w", err)
	}
	return n, nil
}

func currentTx(ctx context.Context, tx *sql.Tx, id string) (Doc, bool, error) {
	doc, err := scanDoc(tx.QueryRowContext(ctx,
		`SELECT `+docColumns+` FROM docs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Doc{}, false, nil
	}
	if err != nil {
		return Doc{}, false, fmt.Errorf("read %s: %w", id, err)
	}
	return doc, true, nil
}

// writeTx assigns the next sequence to doc and upserts it.
func writeTx(ctx context.Context, tx *sql.Tx, doc *Doc) error {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM docs`).Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}
	doc.Seq = seq

	deleted := 0
	if doc.Deleted {
		deleted = 1
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO docs (id, rev, deleted, body, seq, origin, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			rev = excluded.rev, deleted = excluded.deleted, body = excluded.body,
			seq = excluded.seq, origin = excluded.origin, updated_at = excluded.updated_at`,
		doc.ID, doc.Rev, deleted, string(doc.Body), doc.Seq, doc.Origin, now,
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", doc.ID, err)
	}
	return nil
}
