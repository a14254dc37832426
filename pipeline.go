package triage

import (
	"context"
	"log/slog"
)

// Result is the shared per-request context each stage reads and extends.
type Result struct {
	Labels   []string
	CacheHit bool
	Similar  []Match
	Summary  string
}

// Stage is one step of the triage chain.
type Stage interface {
	Name() string
	Process(ctx context.Context, issue *Issue, res *Result) error
}

// Pipeline runs a fixed, ordered list of stages over a shared Result. The
// order matters: similarity search-and-store runs exactly once per issue,
// after labels are known (they are persisted alongside the embedding) and
// before summarization (which uses the similar issues it found).
//
// A stage error is logged and the chain continues; no stage failure may
// prevent the pipeline from completing.
type Pipeline struct {
	Log    *slog.Logger
	stages []Stage
}

func NewPipeline(log *slog.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{Log: log, stages: stages}
}

func (p *Pipeline) Process(ctx context.Context, issue *Issue) *Result {
	res := &Result{Labels: []string{}}
	for _, stage := range p.stages {
		if err := stage.Process(ctx, issue, res); err != nil {
			p.Log.Error("stage failed",
				"stage", stage.Name(),
				"issue", issue.ID,
				"repo", issue.FullRepo(),
				"url", issue.URL,
				"error", err,
			)
		}
	}
	return res
}

// LabelStage resolves labels via the semantic cache or generation.
type LabelStage struct {
	Labeler *Labeler
}

func (s *LabelStage) Name() string { return "labeling" }

func (s *LabelStage) Process(ctx context.Context, issue *Issue, res *Result) error {
	res.Labels, res.CacheHit = s.Labeler.ResolveLabels(ctx, issue)
	return nil
}

// SimilarIssueSource is the search-then-store operation the pipeline runs
// once per issue. *Engine implements it.
type SimilarIssueSource interface {
	FindSimilarAndStore(ctx context.Context, issue *Issue, labels []string, k int) ([]Match, error)
}

// SearchStage records similar issues and stores the new issue in the corpus.
type SearchStage struct {
	Engine SimilarIssueSource
	K      int
}

func (s *SearchStage) Name() string { return "similarity-search" }

func (s *SearchStage) Process(ctx context.Context, issue *Issue, res *Result) error {
	k := s.K
	if k == 0 {
		k = 3
	}
	matches, err := s.Engine.FindSimilarAndStore(ctx, issue, res.Labels, k)
	res.Similar = matches
	return err
}

// SummaryStage generates the contextual summary.
type SummaryStage struct {
	Summarizer *Summarizer
}

func (s *SummaryStage) Name() string { return "summarization" }

func (s *SummaryStage) Process(ctx context.Context, issue *Issue, res *Result) error {
	res.Summary = s.Summarizer.Summarize(ctx, issue, res.Labels, res.Similar)
	return nil
}

// NotifyStage terminates the chain. Its failure is logged with full context
// by the pipeline but does not roll back earlier stages: the issue counts
// as triaged even when notification fails.
type NotifyStage struct {
	Notifier *SlackNotifier
}

func (s *NotifyStage) Name() string { return "notification" }

func (s *NotifyStage) Process(ctx context.Context, issue *Issue, res *Result) error {
	return s.Notifier.Notify(ctx, issue, res.Labels, res.Similar, res.Summary)
}
