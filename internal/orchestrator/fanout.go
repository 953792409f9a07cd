package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dusk-indust/deepresearch/internal/research"
)

// ReasonDeadline is the failure reason recorded for tasks that had not
// finished when the research deadline passed.
const ReasonDeadline = "research deadline exceeded"

// Researcher produces the report for one subtopic.
type Researcher interface {
	Research(ctx context.Context, topic string, s research.Subtopic, round int) (*research.Report, error)
}

// RoundResult holds the outcome of one research round. Every dispatched
// subtopic appears exactly once, either as a report or as a failure, and
// both lists are ordered by subtopic ordinal.
type RoundResult struct {
	Reports  []research.Report
	Failures []research.TaskFailure
}

// Pool runs research tasks with bounded concurrency and joins on all of
// them. A failing task never cancels its siblings.
type Pool struct {
	size        int
	taskTimeout time.Duration
	spawn       func() Researcher
	onProgress  func(ProgressEvent)
	logger      *zap.Logger
}

// NewPool creates a Pool running at most size tasks at once. spawn is called
// once per task to obtain its researcher. onProgress may be nil.
func NewPool(size int, taskTimeout time.Duration, spawn func() Researcher, onProgress func(ProgressEvent), logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		size:        size,
		taskTimeout: taskTimeout,
		spawn:       spawn,
		onProgress:  onProgress,
		logger:      logger.Named("pool"),
	}
}

// taskState is written by task goroutines and read at join.
type taskState struct {
	done   bool
	report *research.Report
	err    error
}

// Run researches every subtopic and returns once all tasks have finished or
// ctx is done, whichever comes first. When ctx ends early the completed
// reports are kept and each unfinished task is recorded as a failure with
// ReasonDeadline.
func (p *Pool) Run(ctx context.Context, jobID, topic string, round int, subtopics []research.Subtopic) RoundResult {
	var (
		mu     sync.Mutex
		states = make([]taskState, len(subtopics))
		sealed bool
	)
	record := func(i int, rep *research.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		if sealed {
			return
		}
		states[i] = taskState{done: true, report: rep, err: err}
	}

	sem := semaphore.NewWeighted(int64(p.size))
	var g errgroup.Group

	for i, s := range subtopics {
		p.emit(ProgressEvent{JobID: jobID, Stage: research.StatusResearching, Subtopic: s.Text, Round: round, Status: ProgressPending})

		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				record(i, nil, err)
				return nil
			}
			defer sem.Release(1)

			p.emit(ProgressEvent{JobID: jobID, Stage: research.StatusResearching, Subtopic: s.Text, Round: round, Status: ProgressWorking})

			tctx := ctx
			if p.taskTimeout > 0 {
				var cancel context.CancelFunc
				tctx, cancel = context.WithTimeout(ctx, p.taskTimeout)
				defer cancel()
			}
			rep, err := p.spawn().Research(tctx, topic, s, round)
			if err == nil && rep == nil {
				err = errors.New("researcher returned no report")
			}
			record(i, rep, err)
			return nil
		})
	}

	joined := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-ctx.Done():
		p.logger.Warn("joining round early", zap.String("job", jobID), zap.Int("round", round), zap.Error(ctx.Err()))
	}

	mu.Lock()
	sealed = true
	final := append([]taskState(nil), states...)
	mu.Unlock()

	return p.collect(ctx, jobID, round, subtopics, final)
}

// collect turns task states into a RoundResult ordered by ordinal.
func (p *Pool) collect(ctx context.Context, jobID string, round int, subtopics []research.Subtopic, states []taskState) RoundResult {
	order := make([]int, len(subtopics))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return subtopics[order[a]].Ordinal < subtopics[order[b]].Ordinal
	})

	var res RoundResult
	for _, i := range order {
		s, st := subtopics[i], states[i]
		if st.done && st.err == nil {
			res.Reports = append(res.Reports, *st.report)
			p.emit(ProgressEvent{
				JobID: jobID, Stage: research.StatusResearching, Subtopic: s.Text, Round: round,
				Status:  ProgressComplete,
				Message: fmt.Sprintf("%d sources", len(st.report.Sources)),
			})
			continue
		}
		reason := p.reason(ctx, st)
		res.Failures = append(res.Failures, research.TaskFailure{Subtopic: s, Reason: reason, Round: round})
		p.logger.Warn("subtopic failed", zap.String("job", jobID), zap.String("subtopic", s.Text), zap.String("reason", reason))
		p.emit(ProgressEvent{
			JobID: jobID, Stage: research.StatusResearching, Subtopic: s.Text, Round: round,
			Status:  ProgressFailed,
			Message: reason,
		})
	}
	return res
}

func (p *Pool) reason(ctx context.Context, st taskState) string {
	switch {
	case !st.done:
		return ReasonDeadline
	case ctx.Err() != nil && isContextErr(st.err):
		return ReasonDeadline
	case errors.Is(st.err, context.DeadlineExceeded):
		return fmt.Sprintf("task timeout (%s) exceeded", p.taskTimeout)
	default:
		return st.err.Error()
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// emit sends a progress event if a callback is registered.
func (p *Pool) emit(ev ProgressEvent) {
	if p.onProgress != nil {
		p.onProgress(ev)
	}
}
