// Package scheduler orchestrates the daily pipeline cycle: ingest,
// enrich, classify, then catch up on any closed weekly periods.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jsilvela/botwatch/internal/classify"
	"github.com/jsilvela/botwatch/internal/config"
	"github.com/jsilvela/botwatch/internal/database"
	"github.com/jsilvela/botwatch/internal/fetch"
	"github.com/jsilvela/botwatch/internal/ingest"
	"github.com/jsilvela/botwatch/internal/llm"
	"github.com/jsilvela/botwatch/internal/reddit"
	"github.com/jsilvela/botwatch/internal/report"
	"github.com/jsilvela/botwatch/internal/summarize"
)

// ErrCycleInProgress is returned when a cycle is invoked while another
// one is still running in this process.
var ErrCycleInProgress = errors.New("pipeline cycle already in progress")

// CycleResult summarizes one full pipeline cycle.
type CycleResult struct {
	Ingest            *ingest.Result
	Content           *fetch.Result
	Classify          *classify.Result
	PeriodsAggregated []time.Time
}

// Pipeline wires the stages together. At most one cycle runs at a time.
type Pipeline struct {
	mu         sync.Mutex
	db         *database.DB
	ingestor   *ingest.Controller
	fetcher    *fetch.ContentFetcher
	classifier *classify.Classifier
	summarizer *summarize.Summarizer
	generator  *report.Generator
	sink       report.Sink
	epoch      time.Time
}

// New assembles a pipeline from its stage dependencies.
func New(db *database.DB, client reddit.Client, provider llm.Provider, sink report.Sink, cfg *config.Config) (*Pipeline, error) {
	ingestor, err := ingest.New(db, client, cfg)
	if err != nil {
		return nil, err
	}
	epoch, err := cfg.EpochTime()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		db:         db,
		ingestor:   ingestor,
		fetcher:    fetch.NewContentFetcher(db, cfg.Reddit.UserAgent, 0),
		classifier: classify.New(db, provider, cfg),
		summarizer: summarize.New(db, provider, cfg),
		generator:  report.New(db, cfg),
		sink:       sink,
		epoch:      epoch,
	}, nil
}

// RunCycle executes one full cycle at the given instant. A failure in a
// later stage never undoes the earlier stages' stored work; it just
// leaves the corresponding cursor or marker where it was, so the next
// cycle picks up from there.
func (p *Pipeline) RunCycle(ctx context.Context, now time.Time) (*CycleResult, error) {
	if !p.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer p.mu.Unlock()

	if pending, err := p.db.HasPendingRun(); err != nil {
		return nil, fmt.Errorf("checking run ledger: %w", err)
	} else if pending {
		// A pending row with no live cycle means a previous process died
		// mid-run. Its window never advanced the cursor, so re-covering
		// it here is safe.
		log.Println("Warning: found a stale pending run, re-covering its window")
	}

	result := &CycleResult{}

	ingestResult, err := p.ingestor.Run(ctx, now)
	if err != nil {
		return result, err
	}
	result.Ingest = ingestResult

	result.Content = p.fetcher.FetchMissingContent()

	result.Classify = p.classifier.ClassifyBacklog(ctx)
	if ingestResult != nil {
		if err := p.db.SetRunClassifiedCount(ingestResult.LedgerID, result.Classify.Processed); err != nil {
			return result, fmt.Errorf("recording classification count: %w", err)
		}
	}

	aggregated, err := p.aggregateClosedPeriods(ctx, now)
	result.PeriodsAggregated = aggregated
	if err != nil {
		return result, err
	}
	return result, nil
}

// Aggregate runs only the weekly aggregation stage, catching up on all
// closed periods since the marker.
func (p *Pipeline) Aggregate(ctx context.Context, now time.Time) ([]time.Time, error) {
	if !p.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer p.mu.Unlock()
	return p.aggregateClosedPeriods(ctx, now)
}

// aggregateClosedPeriods summarizes, reports on, and publishes every
// weekly period that has closed since the aggregation marker, oldest
// first. A period only counts as closed once the ingestion cursor has
// passed its end; a week whose data is still unfetched stays open until
// ingestion recovers. The marker advances per period, and only after
// the sink confirms delivery, so a failure resumes at the same period
// next time.
func (p *Pipeline) aggregateClosedPeriods(ctx context.Context, now time.Time) ([]time.Time, error) {
	from, ok, err := p.db.GetMarker(database.MarkerAggregatedThrough)
	if err != nil {
		return nil, fmt.Errorf("reading aggregation marker: %w", err)
	}
	if !ok {
		from = p.epoch
	}

	cursor, ok, err := p.db.LastSucceededWindowEnd()
	if err != nil {
		return nil, fmt.Errorf("reading ingestion cursor: %w", err)
	}
	if !ok {
		log.Println("No succeeded ingestion runs yet, nothing to aggregate")
		return nil, nil
	}
	horizon := now.UTC()
	if cursor.Before(horizon) {
		horizon = cursor
	}

	var done []time.Time
	for _, periodStart := range database.ClosedPeriodsSince(from, horizon) {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}

		if _, err := p.summarizer.SummarizePeriod(ctx, periodStart); err != nil {
			return done, fmt.Errorf("summarizing period %s: %w", database.PeriodID(periodStart), err)
		}

		rep, err := p.generator.GeneratePeriod(periodStart)
		if err != nil {
			return done, fmt.Errorf("generating report %s: %w", database.PeriodID(periodStart), err)
		}

		if err := p.sink.Publish(periodStart, rep.BodyMarkdown); err != nil {
			return done, fmt.Errorf("publishing report %s: %w", database.PeriodID(periodStart), err)
		}

		if err := p.db.SetMarker(database.MarkerAggregatedThrough, database.PeriodEnd(periodStart)); err != nil {
			return done, fmt.Errorf("advancing aggregation marker: %w", err)
		}
		done = append(done, periodStart)
		log.Printf("Aggregated weekly period %s (%d posts)", database.PeriodID(periodStart), rep.PostCount)
	}
	return done, nil
}
