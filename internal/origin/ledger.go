package origin

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Sonified/seisstream/internal/station"
)

// State is one step of an origin pipeline's per-(SID,D) state machine.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateNormalizing State = "normalizing"
	StateBuilding    State = "building"
	StateUploading   State = "uploading"
	StateIndexing    State = "indexing"
	StateDone        State = "done"
	StateError       State = "error"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	sid TEXT NOT NULL,
	day TEXT NOT NULL,
	task_id TEXT NOT NULL,
	state TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	error TEXT,
	PRIMARY KEY (sid, day)
);
`

// Ledger records, via a pure-Go sqlite driver, which (SID, D) origin tasks
// are in flight or finished — an operator-facing audit trail, not part of
// the pipeline's own correctness (the coalescer, not the ledger, is the
// source of truth for "is this day already being processed").
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if necessary) the sqlite-backed ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("origin: open ledger: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("origin: migrate ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Start records a task beginning (or restarting) for (sid, d), minting a
// fresh task_id each time so operators can tell a restarted run apart from
// the one it replaced even though the (sid, day) row is reused.
func (l *Ledger) Start(ctx context.Context, sid station.SID, d station.Day, now time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO tasks (sid, day, task_id, state, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sid, day) DO UPDATE SET
			task_id = excluded.task_id, state = excluded.state, started_at = excluded.started_at,
			finished_at = NULL, error = NULL
	`, sid.String(), d.String(), uuid.NewString(), string(StateFetching), now.Format(time.RFC3339))
	return err
}

// Transition records an in-flight task moving to the next state.
func (l *Ledger) Transition(ctx context.Context, sid station.SID, d station.Day, state State) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE tasks SET state = ? WHERE sid = ? AND day = ?`,
		string(state), sid.String(), d.String())
	return err
}

// Finish records a task's terminal state.
func (l *Ledger) Finish(ctx context.Context, sid station.SID, d station.Day, state State, finishErr error, now time.Time) error {
	errText := ""
	if finishErr != nil {
		errText = finishErr.Error()
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE tasks SET state = ?, finished_at = ?, error = ? WHERE sid = ? AND day = ?`,
		string(state), now.Format(time.RFC3339), errText, sid.String(), d.String())
	return err
}

// TaskRecord is one row of the ledger, surfaced to operator tooling.
type TaskRecord struct {
	SID        string
	Day        string
	TaskID     string
	State      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Error      string
}

// List returns every recorded task, most recently started first.
func (l *Ledger) List(ctx context.Context) ([]TaskRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT sid, day, task_id, state, started_at, finished_at, error FROM tasks ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var startedAt string
		var finishedAt, errText sql.NullString
		if err := rows.Scan(&rec.SID, &rec.Day, &rec.TaskID, &rec.State, &startedAt, &finishedAt, &errText); err != nil {
			return nil, err
		}
		rec.StartedAt, err = time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("origin: parse started_at %q: %w", startedAt, err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(time.RFC3339, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("origin: parse finished_at %q: %w", finishedAt.String, err)
			}
			rec.FinishedAt = &t
		}
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
