// Package history keeps a SQLite journal of finished conversion tasks.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS outcomes (
	task_id     TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	chunks      INTEGER NOT NULL DEFAULT 0,
	bytes       INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_finished ON outcomes (finished_at);`

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Journal records terminal task outcomes. Task state itself stays in memory;
// the journal only answers "what happened recently".
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("history database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores one outcome. A second record for the same task replaces the first.
func (j *Journal) Record(ctx context.Context, o domain.Outcome) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO outcomes (task_id, state, error, chunks, bytes, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.TaskID, string(o.State), o.Error, o.Chunks, o.Bytes,
		o.CreatedAt.UTC().Format(timeLayout), o.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record outcome %s: %w", o.TaskID, err)
	}
	return nil
}

// Recent returns up to limit outcomes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT task_id, state, error, chunks, bytes, created_at, finished_at
		 FROM outcomes ORDER BY finished_at DESC, task_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []domain.Outcome
	for rows.Next() {
		var (
			o                 domain.Outcome
			state             string
			created, finished string
			err               error
		)
		if err = rows.Scan(&o.TaskID, &state, &o.Error, &o.Chunks, &o.Bytes, &created, &finished); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.State = domain.TaskState(state)
		if o.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", o.TaskID, err)
		}
		if o.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of %s: %w", o.TaskID, err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Prune deletes outcomes finished before cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM outcomes WHERE finished_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return res.RowsAffected()
}
