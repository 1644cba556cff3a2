// Package fetch enriches link posts with the text of the page they
// point at, so the classifier has more than a bare title to work with.
package fetch

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/jsilvela/botwatch/internal/database"
)

// Result holds the results of a content fetch pass.
type Result struct {
	Fetched int
	Skipped int
	Failed  int
}

// ContentFetcher fetches linked page text via HTTP + readability extraction.
type ContentFetcher struct {
	db        *database.DB
	client    *http.Client
	userAgent string
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(db *database.DB, userAgent string, timeout time.Duration) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		db:        db,
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// FetchMissingContent fetches page text for link posts with an empty body.
// A domain that errors once is skipped for the rest of the pass.
func (f *ContentFetcher) FetchMissingContent() *Result {
	posts, err := f.db.GetPostsNeedingContent()
	if err != nil {
		log.Printf("Error getting posts needing content: %v", err)
		return &Result{}
	}

	if len(posts) == 0 {
		log.Println("No posts need content fetching")
		return &Result{}
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for _, post := range posts {
		postURL := ""
		if post.URL != nil {
			postURL = *post.URL
		}

		domain := hostOf(postURL)
		if !fetchableURL(postURL, domain) {
			f.db.MarkPostContentAttempted(post.ID)
			result.Skipped++
			continue
		}

		if _, failed := failedDomains[domain]; failed {
			f.db.MarkPostContentAttempted(post.ID)
			result.Failed++
			continue
		}

		content, httpErr := f.fetchPageContent(postURL)
		if httpErr != nil {
			f.db.MarkPostContentAttempted(post.ID)
			result.Failed++
			failedDomains[domain] = struct{}{}
			log.Printf("HTTP error for %s, skipping remaining from %s", postURL, domain)
			continue
		}

		if content != "" {
			f.db.UpdatePostContent(post.ID, &content)
			result.Fetched++
			log.Printf("Fetched content for: %s", post.Title)
		} else {
			f.db.MarkPostContentAttempted(post.ID)
			result.Failed++
			log.Printf("No extractable content from: %s", postURL)
		}
	}

	log.Printf("Content fetch complete: %d fetched, %d skipped, %d failed",
		result.Fetched, result.Skipped, result.Failed)
	return result
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

// fetchableURL filters out self links back into the forum and media
// URLs readability can't extract text from.
func fetchableURL(rawURL, domain string) bool {
	if rawURL == "" || domain == "" {
		return false
	}
	if strings.HasSuffix(domain, "reddit.com") || strings.HasSuffix(domain, "redd.it") {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".mp4", ".webm", ".webp"} {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

func (f *ContentFetcher) fetchPageContent(pageURL string) (string, error) {
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	parsedURL, _ := url.Parse(pageURL)
	page, err := readability.FromReader(strings.NewReader(string(bodyBytes)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(page.TextContent)
	if len(text) > 100 {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
