// Package episodic is the bounded append log of ingested events (spec
// §4.7), indexed by (timestamp, status, linked_semantic_id). Grounded on
// the teacher's internal/storage/sqlite/events.go event-log table shape
// and newest-first, stable-by-id ordering.
package episodic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sl4m3/agentmem/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodic_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	context_json TEXT NOT NULL DEFAULT '',
	schema_version INTEGER NOT NULL,
	event_timestamp TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	linked_semantic_id TEXT NOT NULL DEFAULT '',
	ingested_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodic_ts ON episodic_rows(event_timestamp);
CREATE INDEX IF NOT EXISTS idx_episodic_status ON episodic_rows(status);
CREATE INDEX IF NOT EXISTS idx_episodic_linked ON episodic_rows(linked_semantic_id);
`

// Store is the Episodic Store: an append-only log of ingested events.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the episodic log database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path))
	if err != nil {
		return nil, fmt.Errorf("episodic: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("episodic: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append records event as a new row and returns its id. linkedID may be
// empty. Always succeeds once durable (spec §4.7).
func (s *Store) Append(ctx context.Context, event types.Event, linkedID string) (int64, error) {
	var contextJSON string
	if event.Context != nil {
		b, err := json.Marshal(event.Context)
		if err != nil {
			return 0, fmt.Errorf("episodic: marshal context: %w", err)
		}
		contextJSON = string(b)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO episodic_rows
			(source, kind, content, context_json, schema_version, event_timestamp, status, linked_semantic_id, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?, ?)
	`, string(event.Source), string(event.Kind), event.Content, contextJSON, event.SchemaVersion,
		event.Timestamp.UTC().Format(time.RFC3339Nano), linkedID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("episodic: append: %w", err)
	}
	return res.LastInsertId()
}

// Query returns up to limit rows, newest first (by timestamp, then id as a
// stable tiebreaker), optionally filtered by status and a [since, until)
// timestamp range.
func (s *Store) Query(ctx context.Context, limit int, status types.EpisodicStatus, since, until *time.Time) ([]types.EpisodicRow, error) {
	q := `SELECT id, source, kind, content, context_json, schema_version, event_timestamp, status, linked_semantic_id, ingested_at
	      FROM episodic_rows WHERE 1=1`
	var args []any
	if status != "" {
		q += " AND status = ?"
		args = append(args, string(status))
	}
	if since != nil {
		q += " AND event_timestamp >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	if until != nil {
		q += " AND event_timestamp < ?"
		args = append(args, until.UTC().Format(time.RFC3339Nano))
	}
	q += " ORDER BY event_timestamp DESC, id DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("episodic: query: %w", err)
	}
	defer rows.Close()

	var out []types.EpisodicRow
	for rows.Next() {
		var (
			r                                                    types.EpisodicRow
			source, kind, contextJSON, ts, status, linked, ingAt string
		)
		if err := rows.Scan(&r.ID, &source, &kind, &r.Event.Content, &contextJSON, &r.Event.SchemaVersion,
			&ts, &status, &linked, &ingAt); err != nil {
			return nil, fmt.Errorf("episodic: scan: %w", err)
		}
		r.Event.Source = types.Source(source)
		r.Event.Kind = types.Kind(kind)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.Event.Timestamp = t
		}
		if contextJSON != "" {
			if r.Event.Kind.HasDecisionContent() {
				var dc types.DecisionContent
				if err := json.Unmarshal([]byte(contextJSON), &dc); err == nil {
					r.Event.Context = &dc
				}
			} else {
				var m map[string]any
				if err := json.Unmarshal([]byte(contextJSON), &m); err == nil {
					r.Event.Context = m
				}
			}
		}
		r.Status = types.EpisodicStatus(status)
		r.LinkedSemanticID = linked
		if t, err := time.Parse(time.RFC3339Nano, ingAt); err == nil {
			r.IngestedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LinkToSemantic sets rowID's linked_semantic_id. Idempotent.
func (s *Store) LinkToSemantic(ctx context.Context, rowID int64, semanticID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE episodic_rows SET linked_semantic_id = ? WHERE id = ?`, semanticID, rowID)
	if err != nil {
		return fmt.Errorf("episodic: link %d: %w", rowID, err)
	}
	return nil
}

// MarkArchived transitions the given ids to archived status.
func (s *Store) MarkArchived(ctx context.Context, ids []int64) error {
	return s.batchExec(ctx, `UPDATE episodic_rows SET status = 'archived' WHERE id = ?`, ids)
}

// PhysicalPrune deletes the given ids outright.
func (s *Store) PhysicalPrune(ctx context.Context, ids []int64) error {
	return s.batchExec(ctx, `DELETE FROM episodic_rows WHERE id = ?`, ids)
}

func (s *Store) batchExec(ctx context.Context, query string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("episodic: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("episodic: prepare: %w", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("episodic: exec %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// AllForDecay returns every row, active and archived, for use by the Decay
// Engine's pure partition function. It takes no view of the semantic store:
// whether a row's linked_semantic_id still exists is for the caller to
// work out and pass to the Decay Engine.
func (s *Store) AllForDecay(ctx context.Context) ([]types.EpisodicRow, error) {
	return s.Query(ctx, 0, "", nil, nil)
}
