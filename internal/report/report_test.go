package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func testConfig() *config.Config {
	return &config.Config{
		Tracking: config.Tracking{
			Models: []config.TrackedModel{{Name: "optimus"}, {Name: "figure"}, {Name: "neo"}},
		},
	}
}

var periodStart = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)

func seedPost(t *testing.T, db *database.DB, id, label string, score, numComments int) {
	t.Helper()
	post := database.Post{
		ID:          id,
		Subreddit:   "robotics",
		Title:       "Post " + id,
		Body:        ptr("body"),
		Score:       score,
		NumComments: numComments,
		CreatedUTC:  periodStart.Add(12 * time.Hour),
	}
	if _, err := db.UpsertBatch([]database.Post{post}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := db.SetClassification(id, label, 1.0, database.MethodRule, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGeneratePeriodMetrics(t *testing.T) {
	db := openTestDB(t)
	seedPost(t, db, "a", "optimus", 10, 4)
	seedPost(t, db, "b", "optimus", 20, 2)
	seedPost(t, db, "c", "figure", 7, 1)
	seedPost(t, db, "d", database.LabelUnclassified, 100, 50)

	g := New(db, testConfig())
	rep, err := g.GeneratePeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PostCount != 3 {
		t.Errorf("expected 3 tracked posts, got %d", rep.PostCount)
	}

	metrics, err := db.MetricsForPeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(metrics) != 3 {
		t.Fatalf("expected a metrics row per model, got %d", len(metrics))
	}

	byLabel := make(map[string]database.WeeklyMetric)
	for _, m := range metrics {
		byLabel[m.ModelLabel] = m
	}
	if m := byLabel["optimus"]; m.NPosts != 2 || m.AvgScore != 15.0 || m.AvgComments != 3.0 {
		t.Errorf("unexpected optimus metrics: %+v", m)
	}
	if m := byLabel["figure"]; m.NPosts != 1 || m.AvgScore != 7.0 {
		t.Errorf("unexpected figure metrics: %+v", m)
	}
	// A model with no posts still gets a zero row.
	if m, ok := byLabel["neo"]; !ok || m.NPosts != 0 {
		t.Errorf("expected zero row for neo, got %+v", m)
	}
}

func TestReportBodyIncludesSummaries(t *testing.T) {
	db := openTestDB(t)
	seedPost(t, db, "a", "optimus", 10, 4)
	if err := db.UpsertPostSummary("a", periodStart, "Commenters were impressed.", []string{"locomotion"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g := New(db, testConfig())
	rep, err := g.GeneratePeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"# Humanoid Robot Mentions: Feb 02 - Feb 08, 2026",
		"| optimus | 1 | 10.0 | 4.0 |",
		"## Optimus",
		"### Post a",
		"Commenters were impressed.",
		"**Themes:** locomotion",
	} {
		if !strings.Contains(rep.BodyMarkdown, want) {
			t.Errorf("report body missing %q\n---\n%s", want, rep.BodyMarkdown)
		}
	}
}

func TestThemeRollup(t *testing.T) {
	db := openTestDB(t)
	seedPost(t, db, "a", "optimus", 10, 4)
	seedPost(t, db, "b", "figure", 5, 2)
	seedPost(t, db, "c", "neo", 3, 1)
	db.UpsertPostSummary("a", periodStart, "s1", []string{"Reliability", "pricing"})
	db.UpsertPostSummary("b", periodStart, "s2", []string{"reliability"})
	db.UpsertPostSummary("c", periodStart, "s3", []string{"availability"})

	g := New(db, testConfig())
	rep, err := g.GeneratePeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	themesIdx := strings.Index(rep.BodyMarkdown, "## Themes")
	if themesIdx < 0 {
		t.Fatalf("expected Themes section:\n%s", rep.BodyMarkdown)
	}
	section := rep.BodyMarkdown[themesIdx:]
	// Most frequent theme first, case-folded across posts.
	relIdx := strings.Index(section, "- reliability (2 posts)")
	availIdx := strings.Index(section, "- availability")
	if relIdx < 0 || availIdx < 0 || relIdx > availIdx {
		t.Errorf("expected ranked theme list, got:\n%s", section)
	}
}

func TestEmptyPeriodReport(t *testing.T) {
	db := openTestDB(t)
	g := New(db, testConfig())

	rep, err := g.GeneratePeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.PostCount != 0 {
		t.Errorf("expected 0 posts, got %d", rep.PostCount)
	}
	if !strings.Contains(rep.BodyMarkdown, "No tracked posts this week.") {
		t.Error("expected empty-week notice in body")
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	db := openTestDB(t)
	seedPost(t, db, "a", "optimus", 10, 4)
	seedPost(t, db, "b", "figure", 5, 2)

	g := New(db, testConfig())
	first, err := g.GeneratePeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := g.GeneratePeriod(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.BodyMarkdown != second.BodyMarkdown {
		t.Error("regenerated report differs from original")
	}

	stored, err := db.GetWeeklyReport(periodStart)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored == nil || stored.BodyMarkdown != first.BodyMarkdown {
		t.Error("stored report does not match generated body")
	}
}

func TestFileSinkPublish(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	if err := sink.Publish(periodStart, "# Report\n"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path := filepath.Join(dir, "reports", "2026-02-02.md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected report file at %s: %v", path, err)
	}
	if string(data) != "# Report\n" {
		t.Errorf("unexpected file contents: %q", data)
	}
	if sink.Path(periodStart) != path {
		t.Errorf("unexpected Path: %s", sink.Path(periodStart))
	}
}
