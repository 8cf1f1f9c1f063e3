// Package metaindex is the embedded relational index mirroring the header
// of every semantic record (spec §4.2). It uses the teacher's own embedded
// SQLite driver (ncruces/go-sqlite3), the same pure-Go, no-cgo choice the
// teacher makes for its issue index.
package metaindex

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sl4m3/agentmem/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	target TEXT NOT NULL,
	status TEXT NOT NULL,
	kind TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	superseded_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_records_active_target ON records(target, status, kind);
CREATE INDEX IF NOT EXISTS idx_records_target ON records(target);
CREATE INDEX IF NOT EXISTS idx_records_kind_status ON records(kind, status);
`

// Row is one metadata-index row, mirroring a record's header fields.
type Row struct {
	ID           string
	Target       string
	Status       types.Status
	Kind         types.Kind
	Timestamp    string
	SupersededBy string
}

// Index is the metadata index over semantic records, backed by a single
// embedded SQLite database file.
type Index struct {
	db *sql.DB
}

// Open opens (creating if necessary) the metadata index database at path.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite3", sqliteConnString(path))
	if err != nil {
		return nil, fmt.Errorf("metaindex: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer file-backed db; avoid SQLITE_BUSY storms
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metaindex: schema: %w", err)
	}
	return &Index{db: db}, nil
}

func sqliteConnString(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Upsert inserts or replaces row. When enforceUnique is true and row is an
// active decision, a pre-check against GetActive surfaces a conflicting
// target as a *types.ConflictError (I4). enforceUnique is false for writes
// made inside a semantic.Store.Transaction: spec §4.11 step 4 requires the
// new active record to be saved and indexed *before* the decision(s) it
// supersedes are demoted, which means the index legitimately holds two
// active rows for the same target for the remaining duration of the
// transaction. That transient state is never observed by a reader (it sits
// behind the store's exclusive lock) and is corrected before the
// transaction commits — at which point the whole-corpus Integrity Checker
// re-validates I4 over the final disk state and aborts the transaction if
// it still doesn't hold.
func (idx *Index) Upsert(ctx context.Context, row Row, enforceUnique bool) error {
	if enforceUnique && row.Status == types.StatusActive && row.Kind == types.KindDecision {
		existing, err := idx.GetActive(ctx, row.Target)
		if err != nil {
			return err
		}
		if existing != "" && existing != row.ID {
			return &types.ConflictError{Target: row.Target, ExistingID: existing}
		}
	}
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO records (id, target, status, kind, timestamp, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			target = excluded.target,
			status = excluded.status,
			kind = excluded.kind,
			timestamp = excluded.timestamp,
			superseded_by = excluded.superseded_by
	`, row.ID, row.Target, string(row.Status), string(row.Kind), row.Timestamp, row.SupersededBy)
	if err != nil {
		return fmt.Errorf("metaindex: upsert %s: %w", row.ID, err)
	}
	return nil
}

// GetActive returns the id of the active decision for target, or "" if none.
func (idx *Index) GetActive(ctx context.Context, target string) (string, error) {
	var id string
	err := idx.db.QueryRowContext(ctx, `
		SELECT id FROM records WHERE target = ? AND status = 'active' AND kind = 'decision'
	`, target).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("metaindex: get_active %s: %w", target, err)
	}
	return id, nil
}

// ListAll returns every row currently indexed.
func (idx *Index) ListAll(ctx context.Context) ([]Row, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT id, target, status, kind, timestamp, superseded_by FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("metaindex: list_all: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		var status, kind string
		if err := rows.Scan(&r.ID, &r.Target, &status, &kind, &r.Timestamp, &r.SupersededBy); err != nil {
			return nil, fmt.Errorf("metaindex: list_all scan: %w", err)
		}
		r.Status = types.Status(status)
		r.Kind = types.Kind(kind)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the row for id, or (Row{}, false, nil) if absent.
func (idx *Index) Get(ctx context.Context, id string) (Row, bool, error) {
	var r Row
	var status, kind string
	err := idx.db.QueryRowContext(ctx, `
		SELECT id, target, status, kind, timestamp, superseded_by FROM records WHERE id = ?
	`, id).Scan(&r.ID, &r.Target, &status, &kind, &r.Timestamp, &r.SupersededBy)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("metaindex: get %s: %w", id, err)
	}
	r.Status = types.Status(status)
	r.Kind = types.Kind(kind)
	return r, true, nil
}

// Delete removes the row for id, if present.
func (idx *Index) Delete(ctx context.Context, id string) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("metaindex: delete %s: %w", id, err)
	}
	return nil
}

// Clear truncates the index. Used by RebuildFromDisk.
func (idx *Index) Clear(ctx context.Context) error {
	if _, err := idx.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("metaindex: clear: %w", err)
	}
	return nil
}

// RebuildFromDisk truncates the index and reinserts rows parsed from disk
// (spec §4.2). Unlike Upsert, this never rejects on an I4 conflict: the
// corpus may transiently contain more than one active record for a target
// immediately after a crash, and it is the Integrity Checker's job — run
// right after rebuild during Semantic Store start-up — to detect and report
// that, not the index's.
func (idx *Index) RebuildFromDisk(ctx context.Context, rows []Row) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metaindex: rebuild: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("metaindex: rebuild: clear: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, target, status, kind, timestamp, superseded_by)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, row.ID, row.Target, string(row.Status), string(row.Kind), row.Timestamp, row.SupersededBy); err != nil {
			return fmt.Errorf("metaindex: rebuild: insert %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of indexed rows.
func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("metaindex: count: %w", err)
	}
	return n, nil
}
