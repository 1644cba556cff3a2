package database

import "time"

// Classification methods.
const (
	MethodRule  = "rule"
	MethodModel = "model"
)

// LabelUnclassified marks a post that matched no tracked model.
const LabelUnclassified = "unclassified"

// Run statuses.
const (
	RunPending   = "pending"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunPartial   = "partial"
)

// Post is a stored forum post. Immutable once stored except for score,
// num_comments, fetched content, and classification state.
type Post struct {
	ID             string
	Subreddit      string
	Title          string
	Body           *string
	Author         *string
	URL            *string
	Permalink      *string
	Score          int
	NumComments    int
	CreatedUTC     time.Time
	Content        *string
	ContentFetched bool
	FetchedAt      *string
}

// Comment is a stored comment owned by its post.
type Comment struct {
	ID         string
	PostID     string
	Body       *string
	Author     *string
	Score      int
	CreatedUTC time.Time
}

// Classification is the current label attached to a post.
type Classification struct {
	PostID            string
	ModelLabel        string
	Confidence        float64
	Method            string
	ClassifierVersion int
	ClassifiedAt      *string
}

// RunRecord is one row of the append-only run ledger. The window_end of
// the latest succeeded record is the cursor for the next run.
type RunRecord struct {
	ID              int64
	RunID           string
	WindowStart     time.Time
	WindowEnd       time.Time
	Status          string
	PostsIngested   int
	PostsClassified int
	ErrorDetail     *string
	StartedAt       *string
	FinishedAt      *string
}

// PostSummary is the LLM-generated summary of a post's comment thread.
type PostSummary struct {
	PostID      string
	PeriodStart time.Time
	Summary     string
	Themes      []string
	GeneratedAt *string
}

// WeeklyMetric is per-model engagement for one weekly period.
type WeeklyMetric struct {
	PeriodStart time.Time
	ModelLabel  string
	NPosts      int
	AvgScore    float64
	AvgComments float64
}

// WeeklyReport is the stored report artifact for one closed period.
type WeeklyReport struct {
	PeriodStart  time.Time
	BodyMarkdown string
	PostCount    int
	GeneratedAt  *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalPosts      int
	TotalComments   int
	ClassifiedPosts int
	TrackedPosts    int
	Summaries       int
	WeeklyReports   int
	TotalRuns       int
	SucceededRuns   int
}
