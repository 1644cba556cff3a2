package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func testPost(id string, created time.Time) Post {
	return Post{
		ID:         id,
		Subreddit:  "robotics",
		Title:      "Post " + id,
		Body:       ptr("body text"),
		Author:     ptr("someuser"),
		Score:      10,
		CreatedUTC: created,
	}
}

var baseTime = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC) // a Wednesday

func TestUpsertBatchInsert(t *testing.T) {
	db := openTestDB(t)

	n, err := db.UpsertBatch([]Post{testPost("p1", baseTime), testPost("p2", baseTime)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 new posts, got %d", n)
	}
}

func TestUpsertBatchIdempotent(t *testing.T) {
	db := openTestDB(t)
	posts := []Post{testPost("p1", baseTime)}
	comments := []Comment{{ID: "c1", PostID: "p1", Body: ptr("nice"), Score: 3, CreatedUTC: baseTime}}

	if _, err := db.UpsertBatch(posts, comments); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := db.UpsertBatch(posts, comments)
	if err != nil {
		t.Fatalf("unexpected error on second upsert: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 new posts on re-upsert, got %d", n)
	}

	stats, _ := db.GetStats()
	if stats.TotalPosts != 1 {
		t.Errorf("expected 1 post, got %d", stats.TotalPosts)
	}
	if stats.TotalComments != 1 {
		t.Errorf("expected 1 comment, got %d", stats.TotalComments)
	}
}

func TestUpsertRefreshesScoreOnly(t *testing.T) {
	db := openTestDB(t)
	p := testPost("p1", baseTime)
	db.UpsertBatch([]Post{p}, nil)
	db.SetClassification("p1", "optimus", 1.0, MethodRule, 1)

	p.Score = 99
	p.NumComments = 7
	p.Body = ptr("edited body that must not overwrite")
	if _, err := db.UpsertBatch([]Post{p}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := db.GetPostByID("p1")
	if stored.Score != 99 {
		t.Errorf("expected refreshed score 99, got %d", stored.Score)
	}
	if stored.NumComments != 7 {
		t.Errorf("expected refreshed num_comments 7, got %d", stored.NumComments)
	}
	if stored.Body == nil || *stored.Body != "body text" {
		t.Error("expected stored body to be untouched")
	}

	c, _ := db.GetClassification("p1")
	if c == nil || c.ModelLabel != "optimus" {
		t.Error("expected classification to survive re-upsert")
	}
}

func TestUpsertIntegrityViolation(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{testPost("p1", baseTime)}, nil)

	diverged := testPost("p1", baseTime)
	diverged.Title = "a different title entirely"
	_, err := db.UpsertBatch([]Post{diverged}, nil)

	var ierr *IntegrityError
	if !errors.As(err, &ierr) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if ierr.Field != "title" {
		t.Errorf("expected divergent field 'title', got %q", ierr.Field)
	}
}

func TestIntegrityViolationRollsBackBatch(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{testPost("p1", baseTime)}, nil)

	diverged := testPost("p1", baseTime)
	diverged.Subreddit = "different"
	fresh := testPost("p2", baseTime)
	if _, err := db.UpsertBatch([]Post{fresh, diverged}, nil); err == nil {
		t.Fatal("expected error")
	}

	stored, _ := db.GetPostByID("p2")
	if stored != nil {
		t.Error("expected batch rollback to discard p2")
	}
}

func TestPostsInRange(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{
		testPost("p1", baseTime),
		testPost("p2", baseTime.Add(time.Hour)),
		testPost("p3", baseTime.Add(48*time.Hour)),
	}, nil)

	posts, err := db.PostsInRange(baseTime, baseTime.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts in range, got %d", len(posts))
	}
	if posts[0].ID != "p1" || posts[1].ID != "p2" {
		t.Errorf("expected oldest-first order, got %s, %s", posts[0].ID, posts[1].ID)
	}
}

func TestClassificationLifecycle(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{testPost("p1", baseTime)}, nil)

	unclassified, _ := db.GetUnclassifiedPosts(1)
	if len(unclassified) != 1 {
		t.Fatalf("expected 1 unclassified post, got %d", len(unclassified))
	}

	if err := db.SetClassification("p1", "neo", 1.0, MethodRule, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unclassified, _ = db.GetUnclassifiedPosts(1)
	if len(unclassified) != 0 {
		t.Error("expected 0 unclassified after classification")
	}

	c, _ := db.GetClassification("p1")
	if c == nil {
		t.Fatal("expected classification")
	}
	if c.ModelLabel != "neo" || c.Method != MethodRule || c.Confidence != 1.0 {
		t.Errorf("unexpected classification: %+v", c)
	}
}

func TestVersionBumpReopensClassification(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{testPost("p1", baseTime)}, nil)
	db.SetClassification("p1", LabelUnclassified, 0.7, MethodModel, 1)

	unclassified, _ := db.GetUnclassifiedPosts(1)
	if len(unclassified) != 0 {
		t.Error("expected no eligible posts at same version")
	}

	unclassified, _ = db.GetUnclassifiedPosts(2)
	if len(unclassified) != 1 {
		t.Error("expected post eligible again after version bump")
	}
}

func TestClassifiedPostsInRange(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{
		testPost("p1", baseTime),
		testPost("p2", baseTime),
		testPost("p3", baseTime),
	}, nil)
	db.SetClassification("p1", "optimus", 1.0, MethodRule, 1)
	db.SetClassification("p2", LabelUnclassified, 0.7, MethodModel, 1)
	db.SetClassification("p3", "figure", 1.0, MethodRule, 1)

	posts, err := db.ClassifiedPostsInRange(baseTime, baseTime.Add(time.Hour), []string{"optimus", "figure", "neo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Errorf("expected 2 tracked posts, got %d", len(posts))
	}
}

func TestCommentsForPost(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch(
		[]Post{testPost("p1", baseTime)},
		[]Comment{
			{ID: "c2", PostID: "p1", Body: ptr("second"), CreatedUTC: baseTime.Add(time.Minute)},
			{ID: "c1", PostID: "p1", Body: ptr("first"), CreatedUTC: baseTime},
		},
	)

	comments, err := db.CommentsForPost("p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].ID != "c1" {
		t.Errorf("expected oldest comment first, got %s", comments[0].ID)
	}
}

func TestRunLedgerCursor(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.LastSucceededWindowEnd()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no cursor before first run")
	}

	start := baseTime
	end := baseTime.Add(24 * time.Hour)
	id, err := db.CreateRun("run-1", start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := db.HasPendingRun()
	if !pending {
		t.Error("expected a pending run")
	}

	// A failed run must not advance the cursor.
	db.FinishRun(id, RunFailed, 0, 0, "connection refused")
	_, ok, _ = db.LastSucceededWindowEnd()
	if ok {
		t.Error("expected no cursor after failed run")
	}

	id2, _ := db.CreateRun("run-2", start, end)
	db.FinishRun(id2, RunSucceeded, 5, 5, "")
	cursor, ok, _ := db.LastSucceededWindowEnd()
	if !ok {
		t.Fatal("expected cursor after succeeded run")
	}
	if !cursor.Equal(end) {
		t.Errorf("expected cursor %v, got %v", end, cursor)
	}

	run, _ := db.GetRun(id)
	if run.Status != RunFailed {
		t.Errorf("expected failed status, got %q", run.Status)
	}
	if run.ErrorDetail == nil || *run.ErrorDetail != "connection refused" {
		t.Error("expected error detail to be recorded")
	}
}

func TestPartialRunDoesNotAdvanceCursor(t *testing.T) {
	db := openTestDB(t)

	id1, _ := db.CreateRun("run-1", baseTime, baseTime.Add(time.Hour))
	db.FinishRun(id1, RunSucceeded, 3, 3, "")

	id2, _ := db.CreateRun("run-2", baseTime.Add(time.Hour), baseTime.Add(2*time.Hour))
	db.FinishRun(id2, RunPartial, 1, 0, "rate limited on subreddit singularity")

	cursor, ok, _ := db.LastSucceededWindowEnd()
	if !ok {
		t.Fatal("expected cursor")
	}
	if !cursor.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("partial run advanced cursor to %v", cursor)
	}
}

func TestMarkers(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.GetMarker(MarkerAggregatedThrough)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected unset marker")
	}

	db.SetMarker(MarkerAggregatedThrough, baseTime)
	v, ok, _ := db.GetMarker(MarkerAggregatedThrough)
	if !ok || !v.Equal(baseTime) {
		t.Errorf("expected marker %v, got %v (ok=%v)", baseTime, v, ok)
	}

	db.SetMarker(MarkerAggregatedThrough, baseTime.AddDate(0, 0, 7))
	v, _, _ = db.GetMarker(MarkerAggregatedThrough)
	if !v.Equal(baseTime.AddDate(0, 0, 7)) {
		t.Errorf("expected overwritten marker, got %v", v)
	}
}

func TestSummaryLifecycle(t *testing.T) {
	db := openTestDB(t)
	db.UpsertBatch([]Post{testPost("p1", baseTime)}, nil)

	week := WeekStart(baseTime)
	if err := db.UpsertPostSummary("p1", week, "People like the hands.", []string{"dexterity", "pricing"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, _ := db.GetPostSummary("p1")
	if s == nil {
		t.Fatal("expected summary")
	}
	if len(s.Themes) != 2 {
		t.Errorf("expected 2 themes, got %d", len(s.Themes))
	}

	// Replace is idempotent, not additive.
	db.UpsertPostSummary("p1", week, "People like the hands.", []string{"dexterity", "pricing"})
	all, _ := db.SummariesForPeriod(week)
	if len(all) != 1 {
		t.Errorf("expected 1 summary after re-upsert, got %d", len(all))
	}
}

func TestWeeklyMetricsAndReport(t *testing.T) {
	db := openTestDB(t)
	week := WeekStart(baseTime)

	db.UpsertWeeklyMetric(WeeklyMetric{PeriodStart: week, ModelLabel: "optimus", NPosts: 4, AvgScore: 12.5, AvgComments: 3.25})
	db.UpsertWeeklyMetric(WeeklyMetric{PeriodStart: week, ModelLabel: "neo", NPosts: 2, AvgScore: 8, AvgComments: 1})

	metrics, err := db.MetricsForPeriod(week)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("expected 2 metric rows, got %d", len(metrics))
	}
	if metrics[0].ModelLabel != "neo" {
		t.Errorf("expected label-sorted rows, got %q first", metrics[0].ModelLabel)
	}

	if err := db.UpsertWeeklyReport(week, "# Weekly report", 6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	db.UpsertWeeklyReport(week, "# Weekly report", 6)

	reports, _ := db.AllWeeklyReports()
	if len(reports) != 1 {
		t.Errorf("expected 1 report after re-upsert, got %d", len(reports))
	}
	if reports[0].PostCount != 6 {
		t.Errorf("expected post count 6, got %d", reports[0].PostCount)
	}
}
