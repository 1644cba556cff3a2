// Package reddit talks to the public Reddit JSON listing API.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://www.reddit.com"

// PostDTO is one post as returned by the provider.
type PostDTO struct {
	ID          string
	Subreddit   string
	Title       string
	Body        string
	Author      string
	URL         string
	Permalink   string
	Score       int
	NumComments int
	CreatedUTC  time.Time
}

// CommentDTO is one comment as returned by the provider.
type CommentDTO struct {
	ID         string
	PostID     string
	Body       string
	Author     string
	Score      int
	CreatedUTC time.Time
}

// Client is the forum capability the pipeline depends on. Substituted with
// a deterministic fake in tests.
type Client interface {
	// FetchNewPosts returns posts created at or after since, newest first.
	FetchNewPosts(ctx context.Context, subreddit string, since time.Time) ([]PostDTO, error)
	// FetchComments returns the flattened comment tree of a post.
	FetchComments(ctx context.Context, postID string) ([]CommentDTO, error)
}

// HTTPClient fetches listings from the Reddit JSON API.
type HTTPClient struct {
	BaseURL   string
	userAgent string
	pageSize  int
	client    *http.Client
}

// NewHTTPClient creates a client for the public listing endpoints.
func NewHTTPClient(userAgent string, pageSize int) *HTTPClient {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &HTTPClient{
		BaseURL:   defaultBaseURL,
		userAgent: userAgent,
		pageSize:  pageSize,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID          string  `json:"id"`
	Subreddit   string  `json:"subreddit"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type commentData struct {
	ID         string          `json:"id"`
	Body       string          `json:"body"`
	Author     string          `json:"author"`
	Score      int             `json:"score"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"`
}

// FetchNewPosts pages /r/<subreddit>/new newest-first with the provider's
// `after` cursor and stops as soon as returned items fall before since.
func (c *HTTPClient) FetchNewPosts(ctx context.Context, subreddit string, since time.Time) ([]PostDTO, error) {
	var posts []PostDTO
	after := ""

	for {
		params := url.Values{
			"limit":    {strconv.Itoa(c.pageSize)},
			"raw_json": {"1"},
		}
		if after != "" {
			params.Set("after", after)
		}

		var page listing
		endpoint := fmt.Sprintf("%s/r/%s/new.json?%s", c.BaseURL, subreddit, params.Encode())
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, fmt.Errorf("fetching /r/%s/new: %w", subreddit, err)
		}

		done := len(page.Data.Children) == 0
		for _, child := range page.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			var pd postData
			if err := json.Unmarshal(child.Data, &pd); err != nil {
				return nil, fmt.Errorf("decoding post in /r/%s: %w", subreddit, err)
			}

			created := time.Unix(int64(pd.CreatedUTC), 0).UTC()
			if created.Before(since) {
				done = true
				break
			}
			posts = append(posts, PostDTO{
				ID:          pd.ID,
				Subreddit:   pd.Subreddit,
				Title:       pd.Title,
				Body:        pd.Selftext,
				Author:      pd.Author,
				URL:         pd.URL,
				Permalink:   pd.Permalink,
				Score:       pd.Score,
				NumComments: pd.NumComments,
				CreatedUTC:  created,
			})
		}

		if done || page.Data.After == "" {
			return posts, nil
		}
		after = page.Data.After
	}
}

// FetchComments returns the post's comment tree flattened depth-first.
func (c *HTTPClient) FetchComments(ctx context.Context, postID string) ([]CommentDTO, error) {
	params := url.Values{
		"limit":    {"500"},
		"raw_json": {"1"},
	}

	// The comments endpoint returns a two-element array: the post listing
	// followed by the comment listing.
	var payload []listing
	endpoint := fmt.Sprintf("%s/comments/%s.json?%s", c.BaseURL, postID, params.Encode())
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetching comments for %s: %w", postID, err)
	}
	if len(payload) < 2 {
		return nil, nil
	}

	var comments []CommentDTO
	if err := flattenComments(payload[1], postID, &comments); err != nil {
		return nil, fmt.Errorf("decoding comments for %s: %w", postID, err)
	}
	return comments, nil
}

func flattenComments(l listing, postID string, out *[]CommentDTO) error {
	for _, child := range l.Data.Children {
		// "more" stubs carry no comment body; the listing API does not
		// expand them without OAuth, so they are skipped.
		if child.Kind != "t1" {
			continue
		}
		var cd commentData
		if err := json.Unmarshal(child.Data, &cd); err != nil {
			return err
		}
		*out = append(*out, CommentDTO{
			ID:         cd.ID,
			PostID:     postID,
			Body:       cd.Body,
			Author:     cd.Author,
			Score:      cd.Score,
			CreatedUTC: time.Unix(int64(cd.CreatedUTC), 0).UTC(),
		})

		// Replies is either a nested listing or the empty string.
		if len(cd.Replies) > 0 && cd.Replies[0] == '{' {
			var nested listing
			if err := json.Unmarshal(cd.Replies, &nested); err != nil {
				return err
			}
			if err := flattenComments(nested, postID, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: resp.Header.Get("Retry-After")}
	case resp.StatusCode >= 500:
		return &ServerError{Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return &RequestError{Status: resp.StatusCode, URL: endpoint}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
