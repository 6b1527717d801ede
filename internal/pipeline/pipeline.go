// Package pipeline decides, entry by entry, what gets published.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/deusflow/feedcurator/internal/classify"
	"github.com/deusflow/feedcurator/internal/rss"
	"github.com/deusflow/feedcurator/internal/storage"
)

type History interface {
	Exists(ctx context.Context, link string) (bool, error)
	RecentTitles(ctx context.Context, limit int) ([]string, error)
	Insert(ctx context.Context, a storage.Article) (storage.InsertResult, error)
}

type Feeds interface {
	Entries(ctx context.Context, url string) ([]rss.Entry, error)
}

type Pages interface {
	Fetch(ctx context.Context, url string) (string, error)
}

type Extractor interface {
	Extract(raw string) string
}

type Images interface {
	Resolve(ctx context.Context, raw string) string
}

type Relevance interface {
	IsRelevant(ctx context.Context, text string) classify.Verdict
}

type Novelty interface {
	IsDuplicateTopic(ctx context.Context, title string, recent []string) classify.Verdict
}

type Summarizer interface {
	Summarize(ctx context.Context, text, link string) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, body, imageURL string) (string, error)
}

// Recorder receives per-entry decisions and classifier verdicts.
type Recorder interface {
	RecordDecision(stage, outcome string)
	RecordVerdict(kind, verdict string)
}

// Deps are the collaborators of the pipeline. Metrics and Logger may be nil.
type Deps struct {
	History    History
	Feeds      Feeds
	Pages      Pages
	Extractor  Extractor
	Images     Images
	Relevance  Relevance
	Novelty    Novelty
	Summarizer Summarizer
	Publisher  Publisher
	Metrics    Recorder
	Logger     *slog.Logger
}

type Stage string

const (
	StageDedup     Stage = "dedup"
	StageNovelty   Stage = "novelty"
	StageExtract   Stage = "extract"
	StageRelevance Stage = "relevance"
	StageSummarize Stage = "summarize"
	StageImage     Stage = "image"
	StagePublish   Stage = "publish"
	StagePersist   Stage = "persist"
)

type Outcome string

const (
	Published Outcome = "published"
	Skipped   Outcome = "skipped"
)

// Decision is the final state of one entry.
type Decision struct {
	Link    string
	Stage   Stage
	Outcome Outcome
	Reason  string
	Err     error
}

// stageResult is what every step returns: pass, skip with a reason, or a
// transient error (which the entry boundary also turns into a skip).
type stageResult struct {
	skip   bool
	reason string
	err    error
}

var pass = stageResult{}

func skip(reason string) stageResult { return stageResult{skip: true, reason: reason} }

func failed(reason string, err error) stageResult {
	return stageResult{skip: true, reason: reason, err: err}
}

type Pipeline struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{deps: deps, log: log}
}

// entryState carries data between the stages of one entry.
type entryState struct {
	entry  rss.Entry
	recent []string
	raw    string
	text   string
	post   string
	image  string
	ref    string
}

// ProcessEntry runs the decision protocol for one entry. It never panics and
// never returns an error: every failure ends in a skipped Decision.
func (p *Pipeline) ProcessEntry(ctx context.Context, entry rss.Entry, recent []string) (d Decision) {
	st := &entryState{entry: entry, recent: recent}
	stage := StageDedup
	log := p.log.With("link", entry.Link)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while processing entry", "stage", stage, "panic", r, "stack", string(debug.Stack()))
			d = Decision{Link: entry.Link, Stage: stage, Outcome: Skipped, Reason: "panic", Err: fmt.Errorf("panic: %v", r)}
		}
		p.record(d)
	}()

	steps := []struct {
		stage Stage
		run   func(context.Context, *entryState) stageResult
	}{
		{StageDedup, p.dedup},
		{StageNovelty, p.novelty},
		{StageExtract, p.extract},
		{StageRelevance, p.relevance},
		{StageSummarize, p.summarize},
		{StageImage, p.image},
		{StagePublish, p.publish},
	}
	for _, step := range steps {
		stage = step.stage
		if err := ctx.Err(); err != nil {
			return p.skipped(log, entry.Link, stage, stageResult{skip: true, reason: "cancelled", err: err})
		}
		if res := step.run(ctx, st); res.skip {
			return p.skipped(log, entry.Link, stage, res)
		}
	}

	stage = StagePersist
	return p.persist(ctx, log, st)
}

func (p *Pipeline) skipped(log *slog.Logger, link string, stage Stage, res stageResult) Decision {
	if res.err != nil {
		log.Warn("entry skipped", "stage", stage, "reason", res.reason, "error", res.err)
	} else {
		log.Info("entry skipped", "stage", stage, "reason", res.reason)
	}
	return Decision{Link: link, Stage: stage, Outcome: Skipped, Reason: res.reason, Err: res.err}
}

func (p *Pipeline) dedup(ctx context.Context, st *entryState) stageResult {
	exists, err := p.deps.History.Exists(ctx, st.entry.Link)
	if err != nil {
		return failed("history lookup failed", err)
	}
	if exists {
		return skip("already published")
	}
	return pass
}

func (p *Pipeline) novelty(ctx context.Context, st *entryState) stageResult {
	v := p.deps.Novelty.IsDuplicateTopic(ctx, st.entry.Title, st.recent)
	p.verdict("novelty", v)
	switch v {
	case classify.No:
		return pass
	case classify.Yes:
		return skip("similar story already published")
	default:
		return skip("novelty unknown")
	}
}

func (p *Pipeline) extract(ctx context.Context, st *entryState) stageResult {
	raw, err := p.deps.Pages.Fetch(ctx, st.entry.Link)
	if err != nil {
		return failed("page fetch failed", err)
	}
	st.raw = raw
	st.text = p.deps.Extractor.Extract(raw)
	if st.text == "" {
		return skip("no usable content")
	}
	return pass
}

func (p *Pipeline) relevance(ctx context.Context, st *entryState) stageResult {
	v := p.deps.Relevance.IsRelevant(ctx, st.text)
	p.verdict("relevance", v)
	switch v {
	case classify.Yes:
		return pass
	case classify.No:
		return skip("not relevant")
	default:
		return skip("relevance unknown")
	}
}

func (p *Pipeline) summarize(ctx context.Context, st *entryState) stageResult {
	post, err := p.deps.Summarizer.Summarize(ctx, st.text, st.entry.Link)
	if err != nil {
		return failed("summary failed", err)
	}
	if post == "" {
		return skip("empty summary")
	}
	st.post = post
	return pass
}

// image never skips; a missing or broken image only means a text post.
func (p *Pipeline) image(ctx context.Context, st *entryState) (res stageResult) {
	if p.deps.Images == nil {
		return pass
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("image resolution panicked", "link", st.entry.Link, "panic", r)
			st.image = ""
			res = pass
		}
	}()
	st.image = p.deps.Images.Resolve(ctx, st.raw)
	return pass
}

func (p *Pipeline) publish(ctx context.Context, st *entryState) stageResult {
	ref, err := p.deps.Publisher.Publish(ctx, st.post, st.image)
	if err != nil {
		return failed("publish failed", err)
	}
	st.ref = ref
	return pass
}

// persist runs only after a successful publish. A failure here leaves a
// published post without a record; it is logged and reported, not retried.
func (p *Pipeline) persist(ctx context.Context, log *slog.Logger, st *entryState) Decision {
	d := Decision{Link: st.entry.Link, Stage: StagePersist, Outcome: Published}

	res, err := p.deps.History.Insert(ctx, storage.Article{
		Link:         st.entry.Link,
		Title:        st.entry.Title,
		BodyDigest:   st.text,
		PublishedRef: st.ref,
	})
	switch {
	case err != nil:
		d.Reason = "record not saved"
		d.Err = err
		log.Error("published but failed to record", "ref", st.ref, "error", err)
	case res == storage.AlreadyExists:
		d.Reason = "already recorded"
		log.Info("published, record already present", "ref", st.ref)
	default:
		log.Info("published", "ref", st.ref, "title", st.entry.Title, "with_image", st.image != "")
	}
	return d
}

func (p *Pipeline) record(d Decision) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordDecision(string(d.Stage), string(d.Outcome))
	}
}

func (p *Pipeline) verdict(kind string, v classify.Verdict) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.RecordVerdict(kind, v.String())
	}
}
