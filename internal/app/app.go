// Package app wires configuration into a running curator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/feedcurator/internal/classify"
	"github.com/deusflow/feedcurator/internal/config"
	"github.com/deusflow/feedcurator/internal/llm"
	"github.com/deusflow/feedcurator/internal/media"
	"github.com/deusflow/feedcurator/internal/metrics"
	"github.com/deusflow/feedcurator/internal/pipeline"
	"github.com/deusflow/feedcurator/internal/ratelimit"
	"github.com/deusflow/feedcurator/internal/rss"
	"github.com/deusflow/feedcurator/internal/scheduler"
	"github.com/deusflow/feedcurator/internal/scraper"
	"github.com/deusflow/feedcurator/internal/storage"
	"github.com/deusflow/feedcurator/internal/telegram"
)

type App struct {
	cfg      *config.Config
	store    *storage.Store
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
	budget   *ratelimit.Budget
	log      *slog.Logger
	closers  []func()
}

// OpenStore connects the history store described by cfg.
func OpenStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage.Store, error) {
	return storage.Open(ctx, storage.Options{
		Driver: cfg.DBDriver,
		DSN:    cfg.DSN(),
		Logger: log.With("component", "storage"),
	})
}

// New builds every collaborator from cfg and connects to the store, the
// judgment service and Telegram.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:     cfg,
		store:   store,
		metrics: metrics.New(),
		budget:  ratelimit.NewBudget(cfg.MaxLLMRequests, cfg.LLMRequestsPerMinute, log.With("component", "ratelimit")),
		log:     log,
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	gen, err := a.generator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	limited := llm.NewLimited(gen, a.budget, cfg.LLMTimeout)

	bot, err := telegram.NewBot(cfg.TelegramToken, cfg.PublishTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	log.Info("authorized on Telegram", "account", bot.Self.UserName)

	a.pipeline = pipeline.New(pipeline.Deps{
		History:    store,
		Feeds:      rss.NewSource(cfg.RequestTimeout, log.With("component", "rss")),
		Pages:      scraper.NewFetcher(nil, cfg.RequestTimeout),
		Extractor:  &scraper.Extractor{Timeout: scraper.DefaultExtractTimeout, Logger: log.With("component", "extractor")},
		Images:     media.NewResolver(log.With("component", "media")),
		Relevance:  classify.NewRelevance(limited, cfg.FilterPrompt, log.With("component", "relevance")),
		Novelty:    classify.NewNovelty(limited, log.With("component", "novelty")),
		Summarizer: classify.NewSummarizer(limited, cfg.SummaryPrompt),
		Publisher:  telegram.NewPublisher(bot, cfg.TelegramChannelID, log.With("component", "telegram")),
		Metrics:    a.metrics,
		Logger:     log.With("component", "pipeline"),
	})
	return a, nil
}

func (a *App) generator(ctx context.Context) (llm.Generator, error) {
	switch a.cfg.LLMProvider {
	case config.ProviderOpenAI:
		return llm.NewOpenAI(a.cfg.OpenAIAPIKey, a.cfg.OpenAIModel, a.cfg.OpenAIBaseURL), nil
	case config.ProviderGemini:
		g, err := llm.NewGemini(ctx, a.cfg.GeminiAPIKey, a.cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", a.cfg.LLMProvider)
	}
}

// RunOnce runs a single cycle followed by eviction.
func (a *App) RunOnce(ctx context.Context) (pipeline.CycleReport, error) {
	report := a.runCycle(ctx)
	if _, err := a.Prune(ctx); err != nil {
		return report, err
	}
	if n := report.FailedFeeds(); n == len(report.Feeds) && n > 0 {
		return report, fmt.Errorf("all %d feeds failed", n)
	}
	return report, nil
}

// RunForever drives hourly cycles until ctx is cancelled.
func (a *App) RunForever(ctx context.Context) error {
	s := &scheduler.Scheduler{
		Cycle: func(ctx context.Context) error {
			report := a.runCycle(ctx)
			if n := report.FailedFeeds(); n > 0 {
				return fmt.Errorf("%d of %d feeds failed", n, len(report.Feeds))
			}
			return nil
		},
		Evict:        a.Prune,
		RunOnStart:   a.cfg.RunOnStart,
		OnCycleError: func(err error) { a.metrics.SetError(err.Error()) },
		Logger:       a.log.With("component", "scheduler"),
	}
	err := s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) runCycle(ctx context.Context) pipeline.CycleReport {
	report := a.pipeline.RunCycle(ctx, a.cfg.Feeds, a.cfg.FeedConcurrency)
	a.metrics.RecordCycle(report.Duration)
	a.metrics.SetLastRun()

	st := a.budget.GetStats()
	a.log.Info("LLM usage", "used", st.Used, "limit", st.Limit, "refused", st.Refused)
	return report
}

// Prune evicts history older than the retention window.
func (a *App) Prune(ctx context.Context) (int64, error) {
	return Prune(ctx, a.store, a.metrics)
}

// Prune evicts old history from store; m may be nil.
func Prune(ctx context.Context, store *storage.Store, m *metrics.Metrics) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	n, err := store.EvictOlderThan(ctx, storage.RetentionWindow)
	if err != nil {
		return 0, fmt.Errorf("prune: %w", err)
	}
	if m != nil {
		m.AddEvicted(n)
	}
	return n, nil
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

func (a *App) Budget() *ratelimit.Budget { return a.budget }

// Close releases clients in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
