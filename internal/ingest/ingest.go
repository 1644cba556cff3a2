// Package ingest pulls new posts and comments from the forum into the
// store, one contiguous time window per run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
	"github.com/jsilvela/botwatch/internal/reddit"
	"github.com/jsilvela/botwatch/internal/retry"
)

// Result summarizes one ingestion run.
type Result struct {
	RunID         string
	LedgerID      int64
	WindowStart   time.Time
	WindowEnd     time.Time
	Status        string
	PostsIngested int
	Failures      []string
}

// Controller drives ingestion runs. Each run covers the window from the
// last succeeded run's end (or the configured epoch) up to now; only a
// fully succeeded run advances that cursor.
type Controller struct {
	db         *database.DB
	client     reddit.Client
	subreddits []string
	epoch      time.Time
	policy     retry.Policy
}

// New creates an ingestion controller.
func New(db *database.DB, client reddit.Client, cfg *config.Config) (*Controller, error) {
	epoch, err := cfg.EpochTime()
	if err != nil {
		return nil, err
	}
	return &Controller{
		db:         db,
		client:     client,
		subreddits: cfg.Reddit.Subreddits,
		epoch:      epoch,
		policy: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
		},
	}, nil
}

// Run ingests the window [cursor, now) across all configured subreddits
// and records the outcome in the run ledger. It returns (nil, nil) when
// the window is empty. Integrity violations abort the run and surface
// as an error; ordinary subreddit failures degrade the run to partial
// or failed instead.
func (c *Controller) Run(ctx context.Context, now time.Time) (*Result, error) {
	now = now.UTC().Truncate(time.Second)

	cursor, ok, err := c.db.LastSucceededWindowEnd()
	if err != nil {
		return nil, fmt.Errorf("reading run ledger: %w", err)
	}
	if !ok {
		cursor = c.epoch
	}
	if !now.After(cursor) {
		log.Printf("Ingestion window is empty (cursor %s), nothing to do", cursor.Format(time.RFC3339))
		return nil, nil
	}

	runID := uuid.NewString()
	ledgerID, err := c.db.CreateRun(runID, cursor, now)
	if err != nil {
		return nil, fmt.Errorf("creating run record: %w", err)
	}
	log.Printf("Run %s: ingesting [%s, %s) from %d subreddits",
		runID, cursor.Format(time.RFC3339), now.Format(time.RFC3339), len(c.subreddits))

	result := &Result{
		RunID:       runID,
		LedgerID:    ledgerID,
		WindowStart: cursor,
		WindowEnd:   now,
	}

	for _, sub := range c.subreddits {
		if ctx.Err() != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", sub, ctx.Err()))
			continue
		}

		ingested, err := c.ingestSubreddit(ctx, sub, cursor, now)
		if err != nil {
			var integrity *database.IntegrityError
			if errors.As(err, &integrity) {
				result.Status = database.RunFailed
				c.db.FinishRun(ledgerID, database.RunFailed, result.PostsIngested, 0, err.Error())
				return result, fmt.Errorf("ingesting /r/%s: %w", sub, err)
			}
			log.Printf("Run %s: /r/%s failed: %v", runID, sub, err)
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", sub, err))
			continue
		}
		result.PostsIngested += ingested
	}

	switch {
	case len(result.Failures) == 0:
		result.Status = database.RunSucceeded
	case len(result.Failures) == len(c.subreddits):
		result.Status = database.RunFailed
	default:
		result.Status = database.RunPartial
	}

	detail := strings.Join(result.Failures, "; ")
	if err := c.db.FinishRun(ledgerID, result.Status, result.PostsIngested, 0, detail); err != nil {
		return result, fmt.Errorf("finishing run record: %w", err)
	}

	log.Printf("Run %s: %s, %d posts ingested, %d subreddit failures",
		runID, result.Status, result.PostsIngested, len(result.Failures))
	return result, nil
}

// ingestSubreddit fetches one subreddit's window and stores posts plus
// comments in a single transaction, so a failure leaves no partial data
// behind for this subreddit.
func (c *Controller) ingestSubreddit(ctx context.Context, subreddit string, start, end time.Time) (int, error) {
	var dtos []reddit.PostDTO
	err := c.policy.Do(ctx, reddit.IsTransient, func() error {
		fetched, err := c.client.FetchNewPosts(ctx, subreddit, start)
		if err != nil {
			return err
		}
		dtos = fetched
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("fetching posts: %w", err)
	}

	var posts []database.Post
	var comments []database.Comment
	for _, dto := range dtos {
		if dto.CreatedUTC.Before(start) || !dto.CreatedUTC.Before(end) {
			continue
		}
		posts = append(posts, toPost(dto))

		var postComments []reddit.CommentDTO
		err := c.policy.Do(ctx, reddit.IsTransient, func() error {
			fetched, err := c.client.FetchComments(ctx, dto.ID)
			if err != nil {
				return err
			}
			postComments = fetched
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("fetching comments for %s: %w", dto.ID, err)
		}
		for _, cd := range postComments {
			comments = append(comments, toComment(cd))
		}
	}

	if len(posts) == 0 {
		return 0, nil
	}

	inserted, err := c.db.UpsertBatch(posts, comments)
	if err != nil {
		return 0, err
	}
	log.Printf("/r/%s: %d posts in window (%d new), %d comments",
		subreddit, len(posts), inserted, len(comments))
	return inserted, nil
}

func toPost(dto reddit.PostDTO) database.Post {
	return database.Post{
		ID:          dto.ID,
		Subreddit:   dto.Subreddit,
		Title:       dto.Title,
		Body:        nullable(dto.Body),
		Author:      nullable(dto.Author),
		URL:         nullable(dto.URL),
		Permalink:   nullable(dto.Permalink),
		Score:       dto.Score,
		NumComments: dto.NumComments,
		CreatedUTC:  dto.CreatedUTC,
	}
}

func toComment(dto reddit.CommentDTO) database.Comment {
	return database.Comment{
		ID:         dto.ID,
		PostID:     dto.PostID,
		Body:       nullable(dto.Body),
		Author:     nullable(dto.Author),
		Score:      dto.Score,
		CreatedUTC: dto.CreatedUTC,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
