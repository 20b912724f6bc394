// Package localdb is the terminal's durable storage: every committed
// entity and every change still waiting for the remote store.
package localdb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"bar-pos/internal/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
            kind TEXT NOT NULL,
            id TEXT NOT NULL,
            body TEXT NOT NULL,
            PRIMARY KEY (kind, id)
        );`,
	`CREATE TABLE IF NOT EXISTS pending (
            kind TEXT NOT NULL,
            id TEXT NOT NULL,
            op TEXT NOT NULL,
            seq INTEGER NOT NULL,
            PRIMARY KEY (kind, id)
        );`,
}

// DB implements store.Persister on a SQLite file.
type DB struct {
	db *sqlx.DB
}

type recordRow struct {
	Kind string `db:"kind"`
	ID   string `db:"id"`
	Body string `db:"body"`
}

type pendingRow struct {
	Kind string `db:"kind"`
	ID   string `db:"id"`
	Op   string `db:"op"`
	Seq  int64  `db:"seq"`
}

// Open connects to the SQLite file at path and creates the schema.
func Open(path string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate local database: %w", err)
		}
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Load returns records in the order they were first written.
func (d *DB) Load(ctx context.Context) ([]store.Record, []store.PendingOp, error) {
	var rows []recordRow
	if err := d.db.SelectContext(ctx, &rows, `SELECT kind, id, body FROM records ORDER BY rowid`); err != nil {
		return nil, nil, fmt.Errorf("read records: %w", err)
	}
	recs := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, store.Record{Kind: store.Kind(r.Kind), ID: r.ID, Body: []byte(r.Body)})
	}

	var pend []pendingRow
	if err := d.db.SelectContext(ctx, &pend, `SELECT kind, id, op, seq FROM pending ORDER BY seq`); err != nil {
		return nil, nil, fmt.Errorf("read pending ops: %w", err)
	}
	ops := make([]store.PendingOp, 0, len(pend))
	for _, p := range pend {
		ops = append(ops, store.PendingOp{Kind: store.Kind(p.Kind), ID: p.ID, Op: store.OpType(p.Op), Seq: p.Seq})
	}
	return recs, ops, nil
}

// Save writes b in one SQL transaction. Any failure, a full disk included,
// is returned and nothing from b is kept.
func (d *DB) Save(ctx context.Context, b store.Batch) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, kind := range b.Reset {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ?`, string(kind)); err != nil {
			return fmt.Errorf("reset %s: %w", kind, err)
		}
	}
	for _, r := range b.Put {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records(kind, id, body) VALUES (?, ?, ?)
			ON CONFLICT(kind, id) DO UPDATE SET body = excluded.body`,
			string(r.Kind), r.ID, string(r.Body))
		if err != nil {
			return fmt.Errorf("write %s/%s: %w", r.Kind, r.ID, err)
		}
	}
	for _, k := range b.Delete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE kind = ? AND id = ?`, string(k.Kind), k.ID); err != nil {
			return fmt.Errorf("delete %s/%s: %w", k.Kind, k.ID, err)
		}
	}
	for _, op := range b.Pending {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pending(kind, id, op, seq) VALUES (?, ?, ?, ?)
			ON CONFLICT(kind, id) DO UPDATE SET op = excluded.op, seq = excluded.seq`,
			string(op.Kind), op.ID, string(op.Op), op.Seq)
		if err != nil {
			return fmt.Errorf("queue %s/%s: %w", op.Kind, op.ID, err)
		}
	}
	for _, op := range b.Resolved {
		_, err := tx.ExecContext(ctx, `DELETE FROM pending WHERE kind = ? AND id = ? AND seq = ?`,
			string(op.Kind), op.ID, op.Seq)
		if err != nil {
			return fmt.Errorf("resolve %s/%s: %w", op.Kind, op.ID, err)
		}
	}
	return tx.Commit()
}
