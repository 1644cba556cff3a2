package database

import (
	"database/sql"
	"time"
)

// UpsertBatch stores posts and their comments as a single atomic unit.
// A post id already present keeps its stored row; only score, num_comments,
// and fetched_at refresh (last-write-wins). Divergent immutable fields
// surface as an IntegrityError and roll back the whole batch.
// Returns the number of newly inserted posts.
func (db *DB) UpsertBatch(posts []Post, comments []Comment) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, p := range posts {
		var title, subreddit string
		var created int64
		err := tx.QueryRow(
			"SELECT title, subreddit, created_utc FROM posts WHERE id = ?", p.ID,
		).Scan(&title, &subreddit, &created)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(
				`INSERT INTO posts (id, subreddit, title, body, author, url, permalink, score, num_comments, created_utc)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Subreddit, p.Title, p.Body, p.Author, p.URL, p.Permalink,
				p.Score, p.NumComments, p.CreatedUTC.Unix(),
			)
			if err != nil {
				return 0, err
			}
			inserted++
		case err != nil:
			return 0, err
		default:
			if field, ok := divergentField(p, title, subreddit, created); ok {
				return 0, &IntegrityError{PostID: p.ID, Field: field}
			}
			_, err = tx.Exec(
				`UPDATE posts SET score = ?, num_comments = ?, fetched_at = datetime('now') WHERE id = ?`,
				p.Score, p.NumComments, p.ID,
			)
			if err != nil {
				return 0, err
			}
		}
	}

	for _, c := range comments {
		_, err := tx.Exec(
			`INSERT INTO comments (id, post_id, body, author, score, created_utc)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET score = excluded.score`,
			c.ID, c.PostID, c.Body, c.Author, c.Score, c.CreatedUTC.Unix(),
		)
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func divergentField(p Post, title, subreddit string, created int64) (string, bool) {
	if p.Title != title {
		return "title", true
	}
	if p.Subreddit != subreddit {
		return "subreddit", true
	}
	if p.CreatedUTC.Unix() != created {
		return "created_utc", true
	}
	return "", false
}

const postColumns = `id, subreddit, title, body, author, url, permalink, score, num_comments, created_utc, content, content_fetched, fetched_at`

// PostsInRange returns posts created in [start, end), oldest first.
func (db *DB) PostsInRange(start, end time.Time) ([]Post, error) {
	rows, err := db.conn.Query(
		`SELECT `+postColumns+` FROM posts
		WHERE created_utc >= ? AND created_utc < ?
		ORDER BY created_utc ASC`,
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetUnclassifiedPosts returns posts with no classification row, or one
// written by an older classifier version.
func (db *DB) GetUnclassifiedPosts(version int) ([]Post, error) {
	rows, err := db.conn.Query(
		`SELECT p.id, p.subreddit, p.title, p.body, p.author, p.url, p.permalink,
		p.score, p.num_comments, p.created_utc, p.content, p.content_fetched, p.fetched_at
		FROM posts p LEFT JOIN classifications c ON p.id = c.post_id
		WHERE c.post_id IS NULL OR c.classifier_version < ?
		ORDER BY p.created_utc ASC`, version,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// GetPostByID returns a single post, or nil if absent.
func (db *DB) GetPostByID(postID string) (*Post, error) {
	row := db.conn.QueryRow(`SELECT `+postColumns+` FROM posts WHERE id = ?`, postID)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPostsNeedingContent returns link posts with an empty body whose
// target page hasn't been fetched yet.
func (db *DB) GetPostsNeedingContent() ([]Post, error) {
	rows, err := db.conn.Query(
		`SELECT ` + postColumns + ` FROM posts
		WHERE (body IS NULL OR body = '') AND url IS NOT NULL AND content_fetched = 0
		ORDER BY created_utc ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPosts(rows)
}

// UpdatePostContent stores extracted page content for a link post.
func (db *DB) UpdatePostContent(postID string, content *string) error {
	_, err := db.conn.Exec(
		"UPDATE posts SET content = ?, content_fetched = 1 WHERE id = ?",
		content, postID,
	)
	return err
}

// MarkPostContentAttempted marks that a content fetch was tried.
func (db *DB) MarkPostContentAttempted(postID string) error {
	_, err := db.conn.Exec(
		"UPDATE posts SET content_fetched = 1 WHERE id = ?", postID,
	)
	return err
}

func scanPosts(rows *sql.Rows) ([]Post, error) {
	var posts []Post
	for rows.Next() {
		var p Post
		var fetched int
		var created int64
		if err := rows.Scan(&p.ID, &p.Subreddit, &p.Title, &p.Body, &p.Author,
			&p.URL, &p.Permalink, &p.Score, &p.NumComments, &created,
			&p.Content, &fetched, &p.FetchedAt); err != nil {
			return nil, err
		}
		p.CreatedUTC = time.Unix(created, 0).UTC()
		p.ContentFetched = fetched != 0
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func scanPost(row *sql.Row) (*Post, error) {
	var p Post
	var fetched int
	var created int64
	if err := row.Scan(&p.ID, &p.Subreddit, &p.Title, &p.Body, &p.Author,
		&p.URL, &p.Permalink, &p.Score, &p.NumComments, &created,
		&p.Content, &fetched, &p.FetchedAt); err != nil {
		return nil, err
	}
	p.CreatedUTC = time.Unix(created, 0).UTC()
	p.ContentFetched = fetched != 0
	return &p, nil
}
