package database

import (
	"database/sql"
	"time"
)

// MarkerAggregatedThrough tracks the end of the last weekly period whose
// report stage confirmed success. It plays the same role for aggregation
// that the run ledger cursor plays for ingestion.
const MarkerAggregatedThrough = "aggregated_through"

// CreateRun appends a pending RunRecord and returns its row id.
func (db *DB) CreateRun(runID string, windowStart, windowEnd time.Time) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO runs (run_id, window_start, window_end, status)
		VALUES (?, ?, ?, ?)`,
		runID, windowStart.Unix(), windowEnd.Unix(), RunPending,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// FinishRun records the outcome of a run. errorDetail may be empty.
func (db *DB) FinishRun(id int64, status string, postsIngested, postsClassified int, errorDetail string) error {
	var detail *string
	if errorDetail != "" {
		detail = &errorDetail
	}
	_, err := db.conn.Exec(
		`UPDATE runs SET status = ?, posts_ingested = ?, posts_classified = ?,
		error_detail = ?, finished_at = datetime('now') WHERE id = ?`,
		status, postsIngested, postsClassified, detail, id,
	)
	return err
}

// SetRunClassifiedCount records how many of a run's posts were
// classified, once the classification stage completes.
func (db *DB) SetRunClassifiedCount(id int64, n int) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET posts_classified = ? WHERE id = ?", n, id,
	)
	return err
}

// LastSucceededWindowEnd returns the cursor: the window_end of the most
// recent succeeded run. ok is false when no run has succeeded yet.
func (db *DB) LastSucceededWindowEnd() (end time.Time, ok bool, err error) {
	row := db.conn.QueryRow(
		`SELECT window_end FROM runs WHERE status = ? ORDER BY window_end DESC LIMIT 1`,
		RunSucceeded,
	)

	var unix int64
	if err := row.Scan(&unix); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// HasPendingRun reports whether any run is still marked pending.
func (db *DB) HasPendingRun() (bool, error) {
	var n int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM runs WHERE status = ?", RunPending,
	).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetRun returns a run record by row id, or nil.
func (db *DB) GetRun(id int64) (*RunRecord, error) {
	row := db.conn.QueryRow(
		`SELECT id, run_id, window_start, window_end, status, posts_ingested,
		posts_classified, error_detail, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	)
	r, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecentRuns returns the latest run records, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, window_start, window_end, status, posts_ingested,
		posts_classified, error_detail, started_at, finished_at
		FROM runs ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(scan func(...any) error) (*RunRecord, error) {
	var r RunRecord
	var start, end int64
	if err := scan(&r.ID, &r.RunID, &start, &end, &r.Status, &r.PostsIngested,
		&r.PostsClassified, &r.ErrorDetail, &r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	r.WindowStart = time.Unix(start, 0).UTC()
	r.WindowEnd = time.Unix(end, 0).UTC()
	return &r, nil
}

// GetMarker reads a named marker. ok is false when the marker is unset.
func (db *DB) GetMarker(name string) (value time.Time, ok bool, err error) {
	var unix int64
	if err := db.conn.QueryRow(
		"SELECT value FROM markers WHERE name = ?", name,
	).Scan(&unix); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.Unix(unix, 0).UTC(), true, nil
}

// SetMarker writes a named marker.
func (db *DB) SetMarker(name string, value time.Time) error {
	_, err := db.conn.Exec(
		`INSERT INTO markers (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, value.Unix(),
	)
	return err
}
