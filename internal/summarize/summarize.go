// Package summarize turns a tracked post's comment thread into a short
// summary with discussion themes.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
	"github.com/jsilvela/botwatch/internal/llm"
)

const summaryPrompt = `You are analyzing discussion about the humanoid robot "%s" on an online forum.

Post title: %s

Comments:
%s

Summarize what the commenters think in 2-3 sentences, then list the main discussion themes.

Respond with ONLY this JSON:
{"summary": "2-3 sentence summary of the discussion", "themes": ["theme 1", "theme 2"]}`

const maxPromptComments = 50

// Result holds the results of a summarization pass.
type Result struct {
	Summarized int
	Skipped    int
	Errors     int
}

// Summarizer generates per-post comment-thread summaries for a weekly
// period. Posts already summarized are left alone.
type Summarizer struct {
	db        *database.DB
	provider  llm.Provider
	labels    []string
	maxTokens int
}

// New creates a summarizer for the configured tracked models.
func New(db *database.DB, provider llm.Provider, cfg *config.Config) *Summarizer {
	return &Summarizer{
		db:        db,
		provider:  provider,
		labels:    cfg.ModelNames(),
		maxTokens: cfg.LLM.MaxTokens,
	}
}

// SummarizePeriod summarizes every tracked post of the period that has
// comments and no summary yet. An LLM failure skips the post so it gets
// another chance on the next pass.
func (s *Summarizer) SummarizePeriod(ctx context.Context, periodStart time.Time) (*Result, error) {
	periodEnd := database.PeriodEnd(periodStart)
	posts, err := s.db.ClassifiedPostsInRange(periodStart, periodEnd, s.labels)
	if err != nil {
		return nil, fmt.Errorf("listing tracked posts: %w", err)
	}

	r := &Result{}
	for _, post := range posts {
		existing, err := s.db.GetPostSummary(post.ID)
		if err != nil {
			return r, err
		}
		if existing != nil {
			r.Skipped++
			continue
		}

		comments, err := s.db.CommentsForPost(post.ID)
		if err != nil {
			return r, err
		}
		if len(comments) == 0 {
			r.Skipped++
			continue
		}

		classification, err := s.db.GetClassification(post.ID)
		if err != nil {
			return r, err
		}

		summary, themes, err := s.summarizeThread(ctx, classification.ModelLabel, post.Title, comments)
		if err != nil {
			log.Printf("Error summarizing post %s: %v", post.ID, err)
			r.Errors++
			continue
		}

		if err := s.db.UpsertPostSummary(post.ID, periodStart, summary, themes); err != nil {
			return r, fmt.Errorf("storing summary for %s: %w", post.ID, err)
		}
		r.Summarized++
	}

	log.Printf("Summarization for %s: %d summarized, %d skipped, %d errors",
		database.PeriodID(periodStart), r.Summarized, r.Skipped, r.Errors)
	return r, nil
}

func (s *Summarizer) summarizeThread(ctx context.Context, label, title string, comments []database.Comment) (string, []string, error) {
	if s.provider == nil {
		return "", nil, fmt.Errorf("no LLM provider available")
	}

	prompt := fmt.Sprintf(summaryPrompt, label, title, FlattenComments(comments))
	responseText, err := s.provider.Generate(ctx, prompt, s.maxTokens)
	if err != nil {
		return "", nil, err
	}

	parsed := llm.ParseJSONResponse(responseText)
	if parsed == nil {
		return "", nil, fmt.Errorf("unparseable summary response")
	}

	summary := strings.TrimSpace(llm.StringField(parsed, "summary", ""))
	if summary == "" {
		return "", nil, fmt.Errorf("empty summary in response")
	}
	return summary, llm.StringList(parsed, "themes"), nil
}

// FlattenComments renders comments as one bullet line each, capped so
// large threads don't overflow the prompt.
func FlattenComments(comments []database.Comment) string {
	if len(comments) > maxPromptComments {
		comments = comments[:maxPromptComments]
	}

	var b strings.Builder
	for _, c := range comments {
		body := ""
		if c.Body != nil {
			body = strings.TrimSpace(*c.Body)
		}
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}
		author := "unknown"
		if c.Author != nil && *c.Author != "" {
			author = *c.Author
		}
		fmt.Fprintf(&b, "- %s (Score: %d, Author: %s)\n", body, c.Score, author)
	}
	return b.String()
}
