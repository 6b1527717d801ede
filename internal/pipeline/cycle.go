package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deusflow/feedcurator/internal/classify"
)

// FeedReport summarizes one feed pass.
type FeedReport struct {
	URL       string
	Entries   int
	Published int
	Skipped   int
	Err       error // feed-level failure; entries were not processed
}

// CycleReport summarizes a pass over every feed.
type CycleReport struct {
	Feeds    []FeedReport
	Duration time.Duration
}

func (r CycleReport) Published() int {
	n := 0
	for _, f := range r.Feeds {
		n += f.Published
	}
	return n
}

// FailedFeeds returns how many feeds could not be read at all.
func (r CycleReport) FailedFeeds() int {
	n := 0
	for _, f := range r.Feeds {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// ProcessFeed reads one feed and processes its entries in feed order. The
// recent-titles snapshot is taken once and shared by every entry of the feed.
func (p *Pipeline) ProcessFeed(ctx context.Context, url string) FeedReport {
	return p.processFeed(ctx, url, nil)
}

func (p *Pipeline) processFeed(ctx context.Context, url string, guard *inFlight) (report FeedReport) {
	report.URL = url
	log := p.log.With("feed", url)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing feed", "panic", r)
			report.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	entries, err := p.deps.Feeds.Entries(ctx, url)
	if err != nil {
		log.Error("feed unavailable", "error", err)
		report.Err = err
		return report
	}
	report.Entries = len(entries)

	recent, err := p.deps.History.RecentTitles(ctx, classify.MaxRecentTitles)
	if err != nil {
		log.Error("cannot load recent titles, skipping feed", "error", err)
		report.Err = fmt.Errorf("recent titles: %w", err)
		return report
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			break
		}
		if guard != nil && !guard.acquire(entry.Link) {
			log.Info("entry in progress elsewhere, skipping", "link", entry.Link)
			report.Skipped++
			continue
		}
		d := p.ProcessEntry(ctx, entry, recent)
		if guard != nil {
			guard.release(entry.Link)
		}
		if d.Outcome == Published {
			report.Published++
		} else {
			report.Skipped++
		}
	}

	log.Info("feed processed", "entries", report.Entries, "published", report.Published, "skipped", report.Skipped)
	return report
}

// RunCycle processes every feed. With concurrency <= 1 feeds run one after
// another; otherwise up to concurrency feeds run at once and a link seen by
// two feeds is never handled by both at the same time. A failing feed never
// stops the others.
func (p *Pipeline) RunCycle(ctx context.Context, feeds []string, concurrency int) CycleReport {
	start := time.Now()
	reports := make([]FeedReport, len(feeds))

	if concurrency <= 1 {
		for i, url := range feeds {
			if ctx.Err() != nil {
				reports[i] = FeedReport{URL: url, Err: ctx.Err()}
				continue
			}
			reports[i] = p.processFeed(ctx, url, nil)
		}
	} else {
		guard := &inFlight{}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)
		for i, url := range feeds {
			g.Go(func() error {
				reports[i] = p.processFeed(gctx, url, guard)
				return nil
			})
		}
		_ = g.Wait()
	}

	report := CycleReport{Feeds: reports, Duration: time.Since(start)}
	p.log.Info("cycle finished",
		"feeds", len(feeds),
		"failed_feeds", report.FailedFeeds(),
		"published", report.Published(),
		"duration", report.Duration)
	return report
}

// inFlight tracks links currently being processed.
type inFlight struct {
	links sync.Map
}

func (f *inFlight) acquire(link string) bool {
	_, loaded := f.links.LoadOrStore(link, struct{}{})
	return !loaded
}

func (f *inFlight) release(link string) {
	f.links.Delete(link)
}
