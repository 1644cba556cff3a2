package database

import (
	"database/sql"
	"time"
)

// SetClassification inserts or replaces the current classification for a post.
// A post has at most one current classification row.
func (db *DB) SetClassification(postID, label string, confidence float64, method string, version int) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO classifications
		(post_id, model_label, confidence, method, classifier_version)
		VALUES (?, ?, ?, ?, ?)`,
		postID, label, confidence, method, version,
	)
	return err
}

// GetClassification returns the classification for a post, or nil.
func (db *DB) GetClassification(postID string) (*Classification, error) {
	row := db.conn.QueryRow(
		`SELECT post_id, model_label, confidence, method, classifier_version, classified_at
		FROM classifications WHERE post_id = ?`, postID,
	)

	var c Classification
	if err := row.Scan(&c.PostID, &c.ModelLabel, &c.Confidence, &c.Method,
		&c.ClassifierVersion, &c.ClassifiedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ClassifiedPostsInRange returns posts in [start, end) labeled with one of
// the given tracked models, oldest first.
func (db *DB) ClassifiedPostsInRange(start, end time.Time, labels []string) ([]Post, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	query := `SELECT p.id, p.subreddit, p.title, p.body, p.author, p.url, p.permalink,
		p.score, p.num_comments, p.created_utc, p.content, p.content_fetched, p.fetched_at
		FROM posts p JOIN classifications c ON p.id = c.post_id
		WHERE p.created_utc >= ? AND p.created_utc < ? AND c.model_label IN (`
	args := []any{start.Unix(), end.Unix()}
	for i, l := range labels {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, l)
	}
	query += ") ORDER BY p.created_utc ASC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// LabelCountsInRange returns how many posts in [start, end) carry each label.
func (db *DB) LabelCountsInRange(start, end time.Time) (map[string]int, error) {
	rows, err := db.conn.Query(
		`SELECT c.model_label, COUNT(*)
		FROM posts p JOIN classifications c ON p.id = c.post_id
		WHERE p.created_utc >= ? AND p.created_utc < ?
		GROUP BY c.model_label`,
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
