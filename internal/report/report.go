// Package report computes weekly engagement metrics and renders the
// markdown report for a closed weekly period.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
)

// Generator builds the weekly report artifact for one period: the
// per-model metrics rows and the rendered markdown body.
type Generator struct {
	db     *database.DB
	labels []string
}

// New creates a report generator for the configured tracked models.
func New(db *database.DB, cfg *config.Config) *Generator {
	return &Generator{db: db, labels: cfg.ModelNames()}
}

// GeneratePeriod computes metrics for the period, stores them, renders
// the markdown report, and stores that too. Regeneration replaces the
// previous artifacts.
func (g *Generator) GeneratePeriod(periodStart time.Time) (*database.WeeklyReport, error) {
	metrics, postsByLabel, err := g.computeMetrics(periodStart)
	if err != nil {
		return nil, err
	}
	for _, m := range metrics {
		if err := g.db.UpsertWeeklyMetric(m); err != nil {
			return nil, fmt.Errorf("storing metrics for %s: %w", m.ModelLabel, err)
		}
	}

	body, postCount, err := g.render(periodStart, metrics, postsByLabel)
	if err != nil {
		return nil, err
	}
	if err := g.db.UpsertWeeklyReport(periodStart, body, postCount); err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}

	return &database.WeeklyReport{
		PeriodStart:  periodStart,
		BodyMarkdown: body,
		PostCount:    postCount,
	}, nil
}

// computeMetrics aggregates score and comment counts per tracked model
// over the period's classified posts. Models with no posts still get a
// zero row so week-over-week charts have no gaps.
func (g *Generator) computeMetrics(periodStart time.Time) ([]database.WeeklyMetric, map[string][]database.Post, error) {
	periodEnd := database.PeriodEnd(periodStart)

	metrics := make([]database.WeeklyMetric, 0, len(g.labels))
	postsByLabel := make(map[string][]database.Post)
	for _, label := range g.labels {
		posts, err := g.db.ClassifiedPostsInRange(periodStart, periodEnd, []string{label})
		if err != nil {
			return nil, nil, fmt.Errorf("listing %s posts: %w", label, err)
		}
		postsByLabel[label] = posts

		m := database.WeeklyMetric{PeriodStart: periodStart, ModelLabel: label, NPosts: len(posts)}
		if len(posts) > 0 {
			var totalScore, totalComments int
			for _, p := range posts {
				totalScore += p.Score
				totalComments += p.NumComments
			}
			m.AvgScore = float64(totalScore) / float64(len(posts))
			m.AvgComments = float64(totalComments) / float64(len(posts))
		}
		metrics = append(metrics, m)
	}
	return metrics, postsByLabel, nil
}

func (g *Generator) render(periodStart time.Time, metrics []database.WeeklyMetric, postsByLabel map[string][]database.Post) (string, int, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Humanoid Robot Mentions: %s\n\n", database.FormatPeriodDisplay(periodStart))

	b.WriteString("## Weekly Metrics\n\n")
	b.WriteString("| Model | Posts | Avg Score | Avg Comments |\n")
	b.WriteString("|-------|------:|----------:|-------------:|\n")
	for _, m := range metrics {
		fmt.Fprintf(&b, "| %s | %d | %.1f | %.1f |\n", m.ModelLabel, m.NPosts, m.AvgScore, m.AvgComments)
	}
	b.WriteString("\n")

	themes, err := g.periodThemes(periodStart)
	if err != nil {
		return "", 0, err
	}
	if len(themes) > 0 {
		b.WriteString("## Themes\n\n")
		for _, t := range themes {
			if t.count > 1 {
				fmt.Fprintf(&b, "- %s (%d posts)\n", t.name, t.count)
			} else {
				fmt.Fprintf(&b, "- %s\n", t.name)
			}
		}
		b.WriteString("\n")
	}

	postCount := 0
	for _, label := range g.labels {
		posts := postsByLabel[label]
		if len(posts) == 0 {
			continue
		}
		postCount += len(posts)

		fmt.Fprintf(&b, "## %s\n\n", titleCase(label))
		for _, p := range posts {
			fmt.Fprintf(&b, "### %s\n\n", p.Title)
			fmt.Fprintf(&b, "*r/%s, score %d, %d comments*\n\n", p.Subreddit, p.Score, p.NumComments)

			summary, err := g.db.GetPostSummary(p.ID)
			if err != nil {
				return "", 0, err
			}
			if summary != nil {
				b.WriteString(summary.Summary + "\n\n")
				if len(summary.Themes) > 0 {
					fmt.Fprintf(&b, "**Themes:** %s\n\n", strings.Join(summary.Themes, ", "))
				}
			}
		}
	}

	if postCount == 0 {
		b.WriteString("No tracked posts this week.\n")
	}
	return b.String(), postCount, nil
}

type themeCount struct {
	name  string
	count int
}

// periodThemes rolls the per-post themes up into a ranked list for the
// whole period: most frequent first, ties alphabetical.
func (g *Generator) periodThemes(periodStart time.Time) ([]themeCount, error) {
	summaries, err := g.db.SummariesForPeriod(periodStart)
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}

	counts := make(map[string]int)
	for _, s := range summaries {
		for _, theme := range s.Themes {
			counts[strings.ToLower(strings.TrimSpace(theme))]++
		}
	}

	themes := make([]themeCount, 0, len(counts))
	for name, count := range counts {
		themes = append(themes, themeCount{name: name, count: count})
	}
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].count != themes[j].count {
			return themes[i].count > themes[j].count
		}
		return themes[i].name < themes[j].name
	})
	return themes, nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
