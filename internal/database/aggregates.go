package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// UpsertPostSummary stores the summary and themes for a post's comment
// thread. Re-summarizing a post replaces the previous row.
func (db *DB) UpsertPostSummary(postID string, periodStart time.Time, summary string, themes []string) error {
	var themesJSON *string
	if themes != nil {
		data, err := json.Marshal(themes)
		if err != nil {
			return err
		}
		s := string(data)
		themesJSON = &s
	}

	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO post_summaries (post_id, period_start, summary, themes)
		VALUES (?, ?, ?, ?)`,
		postID, periodStart.Unix(), summary, themesJSON,
	)
	return err
}

// GetPostSummary returns the summary for a post, or nil.
func (db *DB) GetPostSummary(postID string) (*PostSummary, error) {
	row := db.conn.QueryRow(
		`SELECT post_id, period_start, summary, themes, generated_at
		FROM post_summaries WHERE post_id = ?`, postID,
	)
	s, err := scanSummary(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SummariesForPeriod returns all post summaries for a weekly period.
func (db *DB) SummariesForPeriod(periodStart time.Time) ([]PostSummary, error) {
	rows, err := db.conn.Query(
		`SELECT post_id, period_start, summary, themes, generated_at
		FROM post_summaries WHERE period_start = ? ORDER BY post_id ASC`,
		periodStart.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []PostSummary
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, rows.Err()
}

func scanSummary(scan func(...any) error) (*PostSummary, error) {
	var s PostSummary
	var start int64
	var themesJSON *string
	if err := scan(&s.PostID, &start, &s.Summary, &themesJSON, &s.GeneratedAt); err != nil {
		return nil, err
	}
	s.PeriodStart = time.Unix(start, 0).UTC()
	if themesJSON != nil {
		if err := json.Unmarshal([]byte(*themesJSON), &s.Themes); err != nil {
			s.Themes = nil
		}
	}
	return &s, nil
}

// UpsertWeeklyMetric stores per-model engagement for a weekly period.
func (db *DB) UpsertWeeklyMetric(m WeeklyMetric) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO weekly_metrics
		(period_start, model_label, n_posts, avg_score, avg_comments)
		VALUES (?, ?, ?, ?, ?)`,
		m.PeriodStart.Unix(), m.ModelLabel, m.NPosts, m.AvgScore, m.AvgComments,
	)
	return err
}

// MetricsForPeriod returns the metrics rows for a weekly period.
func (db *DB) MetricsForPeriod(periodStart time.Time) ([]WeeklyMetric, error) {
	rows, err := db.conn.Query(
		`SELECT period_start, model_label, n_posts, avg_score, avg_comments
		FROM weekly_metrics WHERE period_start = ? ORDER BY model_label ASC`,
		periodStart.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetrics(rows)
}

// AllWeeklyMetrics returns every stored metric row, oldest period first.
func (db *DB) AllWeeklyMetrics() ([]WeeklyMetric, error) {
	rows, err := db.conn.Query(
		`SELECT period_start, model_label, n_posts, avg_score, avg_comments
		FROM weekly_metrics ORDER BY period_start ASC, model_label ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetrics(rows)
}

func scanMetrics(rows *sql.Rows) ([]WeeklyMetric, error) {
	var metrics []WeeklyMetric
	for rows.Next() {
		var m WeeklyMetric
		var start int64
		if err := rows.Scan(&start, &m.ModelLabel, &m.NPosts, &m.AvgScore, &m.AvgComments); err != nil {
			return nil, err
		}
		m.PeriodStart = time.Unix(start, 0).UTC()
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// UpsertWeeklyReport stores the report artifact for a closed period.
// Regenerating a report replaces the previous row.
func (db *DB) UpsertWeeklyReport(periodStart time.Time, bodyMarkdown string, postCount int) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO weekly_reports (period_start, body_markdown, post_count)
		VALUES (?, ?, ?)`,
		periodStart.Unix(), bodyMarkdown, postCount,
	)
	return err
}

// GetWeeklyReport returns the report for a period, or nil.
func (db *DB) GetWeeklyReport(periodStart time.Time) (*WeeklyReport, error) {
	row := db.conn.QueryRow(
		`SELECT period_start, body_markdown, post_count, generated_at
		FROM weekly_reports WHERE period_start = ?`, periodStart.Unix(),
	)

	var r WeeklyReport
	var start int64
	if err := row.Scan(&start, &r.BodyMarkdown, &r.PostCount, &r.GeneratedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	r.PeriodStart = time.Unix(start, 0).UTC()
	return &r, nil
}

// AllWeeklyReports returns all reports, newest period first.
func (db *DB) AllWeeklyReports() ([]WeeklyReport, error) {
	rows, err := db.conn.Query(
		`SELECT period_start, body_markdown, post_count, generated_at
		FROM weekly_reports ORDER BY period_start DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []WeeklyReport
	for rows.Next() {
		var r WeeklyReport
		var start int64
		if err := rows.Scan(&start, &r.BodyMarkdown, &r.PostCount, &r.GeneratedAt); err != nil {
			return nil, err
		}
		r.PeriodStart = time.Unix(start, 0).UTC()
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM posts", &s.TotalPosts},
		{"SELECT COUNT(*) FROM comments", &s.TotalComments},
		{"SELECT COUNT(*) FROM classifications", &s.ClassifiedPosts},
		{"SELECT COUNT(*) FROM classifications WHERE model_label != 'unclassified'", &s.TrackedPosts},
		{"SELECT COUNT(*) FROM post_summaries", &s.Summaries},
		{"SELECT COUNT(*) FROM weekly_reports", &s.WeeklyReports},
		{"SELECT COUNT(*) FROM runs", &s.TotalRuns},
		{"SELECT COUNT(*) FROM runs WHERE status = 'succeeded'", &s.SucceededRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
