package database

import "time"

// CommentsForPost returns a post's comments, oldest first.
func (db *DB) CommentsForPost(postID string) ([]Comment, error) {
	rows, err := db.conn.Query(
		`SELECT id, post_id, body, author, score, created_utc
		FROM comments WHERE post_id = ? ORDER BY created_utc ASC`, postID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		var created int64
		if err := rows.Scan(&c.ID, &c.PostID, &c.Body, &c.Author, &c.Score, &created); err != nil {
			return nil, err
		}
		c.CreatedUTC = time.Unix(created, 0).UTC()
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// CountComments returns the number of stored comments.
func (db *DB) CountComments() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM comments").Scan(&n)
	return n, err
}
