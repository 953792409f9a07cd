// Package orchestrator drives a research job through its lifecycle:
// decomposition, parallel research rounds, optional refinement, synthesis
// and a single citation review.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/deepresearch/internal/agent"
	"github.com/dusk-indust/deepresearch/internal/config"
	"github.com/dusk-indust/deepresearch/internal/llm"
	"github.com/dusk-indust/deepresearch/internal/research"
	"github.com/dusk-indust/deepresearch/internal/sources"
)

// Options bounds a job.
type Options struct {
	Concurrency         int
	MinSubtopics        int
	MaxSubtopics        int
	MaxRefinementRounds int
	ScopingSearch       bool
	TaskTimeout         time.Duration
	ResearchDeadline    time.Duration // covers the research rounds only; zero disables
	LeadModel           string
	SubagentModels      []string
}

// OptionsFromConfig maps a loaded config onto Options. cfg must have had
// ApplyDefaults called.
func OptionsFromConfig(cfg *config.Config) Options {
	o := Options{
		Concurrency:      cfg.Research.Concurrency,
		MinSubtopics:     cfg.Research.MinSubtopics,
		MaxSubtopics:     cfg.Research.MaxSubtopics,
		TaskTimeout:      cfg.Research.TaskTimeout.Std(),
		ResearchDeadline: cfg.Research.ResearchDeadline.Std(),
		LeadModel:        cfg.LLM.Model,
		SubagentModels:   cfg.LLM.SubagentModels,
	}
	if cfg.Research.MaxRefinementRounds != nil {
		o.MaxRefinementRounds = *cfg.Research.MaxRefinementRounds
	}
	if cfg.Research.ScopingSearch != nil {
		o.ScopingSearch = *cfg.Research.ScopingSearch
	}
	return o
}

// Archiver persists finished jobs.
type Archiver interface {
	Save(job *research.Job) error
}

// Deps are the collaborators of an Orchestrator. LLM and Search are
// required; the rest default to in-memory implementations or are disabled.
type Deps struct {
	LLM     llm.Client
	Search  agent.Searcher
	Fetch   agent.PageFetcher // nil leaves research agents on snippets
	Sources sources.Store
	Jobs    *JobStore
	Archive Archiver
	Logger  *zap.Logger
}

// Orchestrator runs research jobs. One Orchestrator may run many jobs
// concurrently; each job is mutated only by the goroutine running it.
type Orchestrator struct {
	opts     Options
	lead     *agent.LeadResearcher
	registry *agent.Registry
	synth    *agent.SynthesisAgent
	reviewer *agent.CitationReviewer
	pool     *Pool
	jobs     *JobStore
	sources  sources.Store
	archive  Archiver
	progress *ProgressReporter
	logger   *zap.Logger
}

// New wires an Orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Jobs == nil {
		deps.Jobs = NewJobStore()
	}
	if deps.Sources == nil {
		deps.Sources = sources.NewMemStore()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = config.DefaultConcurrency
	}

	o := &Orchestrator{
		opts: opts,
		lead: agent.NewLeadResearcher(deps.LLM, deps.Search, agent.LeadOptions{
			Model:         opts.LeadModel,
			MinSubtopics:  opts.MinSubtopics,
			MaxSubtopics:  opts.MaxSubtopics,
			ScopingSearch: opts.ScopingSearch,
		}, logger),
		registry: agent.NewRegistry(deps.LLM, deps.Search, opts.LeadModel, opts.SubagentModels, logger).WithFetcher(deps.Fetch),
		synth:    agent.NewSynthesisAgent(deps.LLM, opts.LeadModel, logger),
		reviewer: agent.NewCitationReviewer(deps.LLM, opts.LeadModel, logger),
		jobs:     deps.Jobs,
		sources:  deps.Sources,
		archive:  deps.Archive,
		progress: NewProgressReporter(),
		logger:   logger,
	}
	o.pool = NewPool(opts.Concurrency, opts.TaskTimeout, func() Researcher {
		return o.registry.Spawn()
	}, o.progress.Emit, logger)
	return o
}

// Jobs returns the store holding job snapshots.
func (o *Orchestrator) Jobs() *JobStore { return o.jobs }

// Sources returns the source graph.
func (o *Orchestrator) Sources() sources.Store { return o.sources }

// Progress returns a channel that emits progress events.
func (o *Orchestrator) Progress() <-chan ProgressEvent {
	return o.progress.Subscribe()
}

// Close shuts down the progress reporter.
func (o *Orchestrator) Close() {
	o.progress.Close()
}

// CreateJob validates topic and creates a job in the decomposing state.
func (o *Orchestrator) CreateJob(ctx context.Context, topic string) (*research.Job, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, research.ErrInvalidTopic
	}
	job := research.NewJob(topic)
	if err := job.Transition(research.StatusDecomposing); err != nil {
		return nil, err
	}
	if err := o.sources.AddJob(ctx, job.ID, topic); err != nil {
		o.logger.Warn("record job in source graph", zap.String("job", job.ID), zap.Error(err))
	}
	o.jobs.Put(job)
	o.logger.Info("job created", zap.String("job", job.ID), zap.String("topic", topic))
	return job, nil
}

// ConductResearch runs a job for topic to completion and returns the master
// report together with a snapshot of the finished job. On failure the job
// snapshot records the failed state and the error is returned; no partial
// report is returned.
func (o *Orchestrator) ConductResearch(ctx context.Context, topic string) (*research.MasterReport, *research.Job, error) {
	job, err := o.CreateJob(ctx, topic)
	if err != nil {
		return nil, nil, err
	}

	master, err := o.run(ctx, job)
	if err != nil {
		stage := job.Status
		job.Fail(err)
		o.publish(job)
		o.progress.Emit(ProgressEvent{JobID: job.ID, Stage: stage, Status: ProgressFailed, Message: err.Error()})
		o.logger.Error("job failed", zap.String("job", job.ID), zap.String("stage", string(stage)), zap.Error(err))
		return nil, job.Clone(), err
	}
	return master.Clone(), job.Clone(), nil
}

func (o *Orchestrator) run(ctx context.Context, job *research.Job) (*research.MasterReport, error) {
	o.stage(job, 0)
	subtopics, err := o.lead.Decompose(ctx, job.Topic)
	if err != nil {
		return nil, err
	}
	o.addSubtopics(ctx, job, subtopics)
	if err := o.transition(job, research.StatusResearching); err != nil {
		return nil, err
	}

	rctx, cancel := o.researchContext(ctx)
	defer cancel()

	o.stage(job, 1)
	o.researchRound(ctx, rctx, job, subtopics, 1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for round := 2; round <= o.opts.MaxRefinementRounds+1; round++ {
		more, err := o.refine(rctx, job)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("refinement skipped", zap.String("job", job.ID), zap.Error(err))
		}
		if len(more) == 0 {
			break
		}
		o.addSubtopics(ctx, job, more)
		if err := o.transition(job, research.StatusResearching); err != nil {
			return nil, err
		}
		o.stage(job, round)
		o.researchRound(ctx, rctx, job, more, round)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	// refine may have left the job in refining with nothing to research.
	if job.Status == research.StatusRefining {
		if err := o.transition(job, research.StatusResearching); err != nil {
			return nil, err
		}
	}

	if len(job.Reports) == 0 {
		return nil, research.ErrNoReports
	}

	if err := o.transition(job, research.StatusSynthesizing); err != nil {
		return nil, err
	}
	o.stage(job, 0)
	draft, err := o.synth.Synthesize(ctx, job.Topic, job.Reports)
	if err != nil {
		return nil, err
	}

	if err := o.transition(job, research.StatusReviewing); err != nil {
		return nil, err
	}
	o.stage(job, 0)
	master, err := o.review(ctx, job, draft)
	if err != nil {
		return nil, err
	}

	job.Master = master
	for _, c := range master.Citations {
		if err := o.sources.AddCitation(ctx, job.ID, c.URL); err != nil {
			o.logger.Warn("record citation", zap.String("job", job.ID), zap.String("url", c.URL), zap.Error(err))
		}
	}
	if err := o.transition(job, research.StatusDone); err != nil {
		return nil, err
	}
	o.progress.Emit(ProgressEvent{
		JobID: job.ID, Stage: research.StatusDone, Status: ProgressComplete,
		Message: fmt.Sprintf("%d reports, %d failures, %d citations", len(job.Reports), len(job.Failures), len(master.Citations)),
	})
	o.logger.Info("job done",
		zap.String("job", job.ID),
		zap.Int("reports", len(job.Reports)),
		zap.Int("failures", len(job.Failures)),
		zap.Int("citations", len(master.Citations)),
		zap.String("review", string(master.Review)))
	return master, nil
}

// researchContext returns the context that bounds the research rounds.
func (o *Orchestrator) researchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.ResearchDeadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opts.ResearchDeadline)
}

// researchRound dispatches subtopics to the pool under rctx and accumulates
// the outcome on job. Source graph writes use ctx so they survive the
// research deadline.
func (o *Orchestrator) researchRound(ctx, rctx context.Context, job *research.Job, subtopics []research.Subtopic, round int) {
	res := o.pool.Run(rctx, job.ID, job.Topic, round, subtopics)
	job.Reports = append(job.Reports, res.Reports...)
	job.Failures = append(job.Failures, res.Failures...)
	for _, rep := range res.Reports {
		if err := sources.RecordRetrieval(ctx, o.sources, rep.SubtopicID, rep.Sources); err != nil {
			o.logger.Warn("record retrieval", zap.String("job", job.ID), zap.String("subtopic", rep.Subtopic), zap.Error(err))
		}
	}
	job.UpdatedAt = time.Now().UTC()
	o.publish(job)
	o.logger.Info("research round finished",
		zap.String("job", job.ID),
		zap.Int("round", round),
		zap.Int("dispatched", len(subtopics)),
		zap.Int("reports", len(res.Reports)),
		zap.Int("failures", len(res.Failures)))
}

// refine asks the lead whether another round is needed and, if so, moves the
// job to refining and returns the additional subtopics. It returns nothing
// once the research deadline has passed.
func (o *Orchestrator) refine(rctx context.Context, job *research.Job) ([]research.Subtopic, error) {
	if rctx.Err() != nil {
		o.logger.Info("research deadline passed, skipping refinement", zap.String("job", job.ID))
		return nil, nil
	}
	if len(job.Reports) == 0 {
		return nil, nil
	}
	needed, reason, err := o.lead.NeedsRefinement(rctx, job.Topic, job.Reports)
	if err != nil || !needed {
		return nil, err
	}
	if err := o.transition(job, research.StatusRefining); err != nil {
		return nil, err
	}
	o.stage(job, 0)
	more, err := o.lead.Refine(rctx, job.Topic, job.Subtopics, job.Reports, reason)
	if err != nil {
		return nil, err
	}
	o.logger.Info("refinement planned", zap.String("job", job.ID), zap.String("reason", reason), zap.Int("subtopics", len(more)))
	return more, nil
}

// review runs the citation review and applies at most one revision. The
// returned report cites only retrieved sources.
func (o *Orchestrator) review(ctx context.Context, job *research.Job, draft *research.MasterReport) (*research.MasterReport, error) {
	retrieved := o.retrieved(ctx, job)
	rev, err := o.reviewer.Review(ctx, job.Topic, draft, retrieved, job.Reports)
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}

	master := draft
	if rev.Clean() {
		master.Review = research.ReviewClean
	} else {
		revised, err := o.synth.Revise(ctx, job.Topic, draft, rev.Findings, retrieved)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("revision failed, enforcing citations only", zap.String("job", job.ID), zap.Error(err))
			revised = draft.Clone()
		}
		master = revised
		master.Review = research.ReviewRevised
		master.Findings = rev.Findings
	}

	removed := Enforce(master, retrieved)
	if len(removed) > 0 {
		o.logger.Info("removed unretrieved citations", zap.String("job", job.ID), zap.Strings("urls", removed))
		if master.Review == research.ReviewClean {
			master.Review = research.ReviewRevised
		}
	}
	return master, nil
}

// Enforce strips citations of m whose URL was not retrieved, together with
// the sentences that depend only on them, and lists the retrieved sources m
// does not cite as additional sources. It returns the removed URLs.
func Enforce(m *research.MasterReport, retrieved []research.SearchResult) []string {
	set := sources.NewSet()
	for _, r := range retrieved {
		set.Add(r.URL)
	}
	removed := sources.StripUnretrieved(m, set)
	m.AdditionalSources = sources.Uncited(m, retrieved)
	return removed
}

// retrieved returns the job's retrieved sources from the source graph,
// falling back to the job's own reports if the graph cannot be read.
func (o *Orchestrator) retrieved(ctx context.Context, job *research.Job) []research.SearchResult {
	srcs, err := o.sources.Sources(ctx, job.ID)
	if err != nil {
		o.logger.Warn("read source graph, using report sources", zap.String("job", job.ID), zap.Error(err))
		return job.RetrievedSources()
	}
	out := make([]research.SearchResult, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, research.SearchResult{Title: s.Title, URL: s.URL, Snippet: s.Snippet})
	}
	return out
}

func (o *Orchestrator) addSubtopics(ctx context.Context, job *research.Job, subtopics []research.Subtopic) {
	job.Subtopics = append(job.Subtopics, subtopics...)
	for _, s := range subtopics {
		if err := o.sources.AddSubtopic(ctx, job.ID, s); err != nil {
			o.logger.Warn("record subtopic", zap.String("job", job.ID), zap.Error(err))
		}
	}
}

func (o *Orchestrator) transition(job *research.Job, to research.Status) error {
	from := job.Status
	if err := job.Transition(to); err != nil {
		return err
	}
	o.logger.Debug("job transition", zap.String("job", job.ID), zap.String("from", string(from)), zap.String("to", string(to)))
	o.publish(job)
	return nil
}

// publish makes job visible to readers. A terminal job that is archived
// successfully is evicted from the live store; readers find it in the
// archive from then on. Without an archive, or when saving fails, it stays
// in memory.
func (o *Orchestrator) publish(job *research.Job) {
	o.jobs.Put(job)
	if o.archive == nil || !job.Status.IsTerminal() {
		return
	}
	if err := o.archive.Save(job); err != nil {
		o.logger.Warn("archive job, keeping it in memory", zap.String("job", job.ID), zap.Error(err))
		return
	}
	o.jobs.Delete(job.ID)
}

func (o *Orchestrator) stage(job *research.Job, round int) {
	o.progress.Emit(ProgressEvent{JobID: job.ID, Stage: job.Status, Round: round, Status: ProgressWorking,
		Message: FormatStageHeader(job.Topic, job.Status, round)})
}
