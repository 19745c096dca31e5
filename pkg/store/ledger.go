package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/echosweep/pkg/sweep"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Sweep statuses kept in the ledger.
const (
	SweepRunning   = "running"
	SweepComplete  = "complete"
	SweepPartial   = "partial"
	SweepCancelled = "cancelled"
)

var (
	// ErrSweepNotFound is returned when no sweep matches an id
	ErrSweepNotFound = errors.New("sweep not found")

	// ErrAmbiguousID is returned when an id prefix matches several sweeps
	ErrAmbiguousID = errors.New("sweep id prefix is ambiguous")
)

// SweepRecord is one sweep in the ledger.
type SweepRecord struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"`
	Points      int        `json:"points"`
	Shape       [2]int     `json:"shape"`
	Repetitions int        `json:"repetitions"`
	OutputDir   string     `json:"output_dir"`
	Config      string     `json:"config"`
}

// PointRecord is the ledger entry of one grid point.
type PointRecord struct {
	SweepID   string         `json:"sweep_id"`
	Index     int            `json:"index"`
	Beta      float64        `json:"beta"`
	Dist      float64        `json:"dist"`
	Status    string         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Summary   *sweep.Summary `json:"summary,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Ledger records sweeps and their per-point outcomes in SQLite.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenLedger opens or creates the ledger database at path.
func OpenLedger(path string, logger zerolog.Logger) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode so inspect can read while a sweep writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	l := &Ledger{db: db, logger: logger.With().Str("component", "ledger").Logger()}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return l, nil
}

func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sweeps (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		status TEXT NOT NULL,
		points INTEGER NOT NULL,
		shape_beta INTEGER NOT NULL,
		shape_dist INTEGER NOT NULL,
		repetitions INTEGER NOT NULL,
		output_dir TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS grid_points (
		sweep_id TEXT NOT NULL REFERENCES sweeps(id) ON DELETE CASCADE,
		grid_index INTEGER NOT NULL,
		beta REAL NOT NULL,
		dist REAL NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		summary TEXT,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (sweep_id, grid_index)
	);

	CREATE INDEX IF NOT EXISTS idx_grid_points_status ON grid_points(sweep_id, status);
	CREATE INDEX IF NOT EXISTS idx_sweeps_started ON sweeps(started_at);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// BeginSweep records a new running sweep.
func (l *Ledger) BeginSweep(ctx context.Context, rec SweepRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sweeps (id, started_at, status, points, shape_beta, shape_dist, repetitions, output_dir, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UnixMilli(), SweepRunning, rec.Points,
		rec.Shape[0], rec.Shape[1], rec.Repetitions, rec.OutputDir, rec.Config,
	)
	if err != nil {
		return fmt.Errorf("failed to record sweep: %w", err)
	}
	return nil
}

// RecordProgress stores the final state of one grid point, replacing any
// earlier entry for it.
func (l *Ledger) RecordProgress(ctx context.Context, sweepID string, p sweep.Progress) error {
	var (
		status  = sweep.StatusOK
		reason  string
		summary sql.NullString
	)
	switch {
	case p.Failure != nil:
		status = string(p.Failure.Kind)
		reason = p.Failure.Reason
	case p.Result != nil:
		data, err := json.Marshal(p.Result.Summary)
		if err != nil {
			return fmt.Errorf("failed to encode summary: %w", err)
		}
		summary = sql.NullString{String: string(data), Valid: true}
	default:
		return fmt.Errorf("progress for grid point %d has neither result nor failure", p.Point.Index)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO grid_points (sweep_id, grid_index, beta, dist, status, reason, summary, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sweepID, p.Point.Index, p.Point.Beta, p.Point.Dist, status, reason, summary, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record grid point %d: %w", p.Point.Index, err)
	}
	return nil
}

// FinishSweep sets the final status of a sweep.
func (l *Ledger) FinishSweep(ctx context.Context, id, status string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE sweeps SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sweep: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSweepNotFound, id)
	}
	return nil
}

const sweepColumns = `id, started_at, finished_at, status, points, shape_beta, shape_dist, repetitions, output_dir, config`

// ListSweeps returns the most recent sweeps first. A limit <= 0 returns all.
func (l *Ledger) ListSweeps(ctx context.Context, limit int) ([]SweepRecord, error) {
	query := `SELECT ` + sweepColumns + ` FROM sweeps ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweeps: %w", err)
	}
	defer rows.Close()

	var out []SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSweep returns the sweep with the given id or unique id prefix.
func (l *Ledger) GetSweep(ctx context.Context, id string) (SweepRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+sweepColumns+` FROM sweeps WHERE id = ? OR id LIKE ? || '%' ORDER BY id = ? DESC LIMIT 2`,
		id, id, id,
	)
	if err != nil {
		return SweepRecord{}, fmt.Errorf("failed to query sweep: %w", err)
	}
	defer rows.Close()

	var found []SweepRecord
	for rows.Next() {
		rec, err := scanSweep(rows)
		if err != nil {
			return SweepRecord{}, err
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return SweepRecord{}, err
	}

	switch {
	case len(found) == 0:
		return SweepRecord{}, fmt.Errorf("%w: %s", ErrSweepNotFound, id)
	case found[0].ID == id, len(found) == 1:
		return found[0], nil
	default:
		return SweepRecord{}, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// Points returns the recorded grid points of a sweep in index order.
func (l *Ledger) Points(ctx context.Context, sweepID string) ([]PointRecord, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT grid_index, beta, dist, status, reason, summary, updated_at
		FROM grid_points WHERE sweep_id = ? ORDER BY grid_index`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid points: %w", err)
	}
	defer rows.Close()

	var out []PointRecord
	for rows.Next() {
		var (
			rec     = PointRecord{SweepID: sweepID}
			summary sql.NullString
			updated int64
		)
		if err := rows.Scan(&rec.Index, &rec.Beta, &rec.Dist, &rec.Status, &rec.Reason, &summary, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan grid point: %w", err)
		}
		rec.UpdatedAt = time.UnixMilli(updated)
		if summary.Valid {
			var s sweep.Summary
			if err := json.Unmarshal([]byte(summary.String), &s); err != nil {
				l.logger.Warn().Err(err).Int("grid_index", rec.Index).Msg("Unreadable summary in ledger")
			} else {
				rec.Summary = &s
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSweep(s scanner) (SweepRecord, error) {
	var (
		rec      SweepRecord
		started  int64
		finished sql.NullInt64
	)
	err := s.Scan(&rec.ID, &started, &finished, &rec.Status, &rec.Points,
		&rec.Shape[0], &rec.Shape[1], &rec.Repetitions, &rec.OutputDir, &rec.Config)
	if err != nil {
		return SweepRecord{}, fmt.Errorf("failed to scan sweep: %w", err)
	}
	rec.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		rec.FinishedAt = &t
	}
	return rec, nil
}

// StatusOf derives the final sweep status from its tensor.
func StatusOf(t *sweep.ResultTensor, cancelled bool) string {
	switch {
	case cancelled:
		return SweepCancelled
	case t.Complete():
		return SweepComplete
	default:
		return SweepPartial
	}
}
