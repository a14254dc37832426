package triage

import (
	"context"
	"log/slog"
)

// SemanticMatcher is the read-only confidence check the orchestrator runs
// before paying for generation. *Engine implements it.
type SemanticMatcher interface {
	FindHighConfidenceMatch(ctx context.Context, inputText string, threshold float64) (*Match, error)
}

// ContextSource supplies repository context for generation prompts.
// *MetaCache implements it.
type ContextSource interface {
	LabelCatalog(ctx context.Context, repoURL string) ([]CatalogLabel, error)
	ExampleIssueForLabel(ctx context.Context, repoURL, label string) (*IssueContext, error)
}

// Labeler resolves labels for an issue: reuse them from a sufficiently
// similar prior issue when one exists, otherwise generate them.
type Labeler struct {
	Log     *slog.Logger
	Matcher SemanticMatcher
	Meta    ContextSource
	LLM     Completer
	Router  *Router

	// Threshold is the cache-hit similarity bar; zero means
	// DefaultThreshold.
	Threshold float64
}

// ResolveLabels never fails: a degraded or unavailable similarity index
// must not block issue processing, so the semantic check falling over is
// routed to the same generation branch as an ordinary miss, and a failed
// generation yields an empty label list.
func (l *Labeler) ResolveLabels(ctx context.Context, issue *Issue) (labels []string, cacheHit bool) {
	threshold := l.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	log := l.Log.With("issue", issue.ID, "repo", issue.FullRepo())

	match, err := l.Matcher.FindHighConfidenceMatch(ctx, issue.InputText(), threshold)
	switch {
	case err != nil:
		log.Warn("semantic check failed, falling back to generation", "error", err)
	case match != nil:
		labels := ExtractLabels(match)
		log.Info("cache hit: reusing labels from similar issue",
			"match", match.Issue.ID,
			"similarity", match.Similarity,
			"labels", labels,
		)
		return labels, true
	default:
		log.Info("cache miss: no high-similarity match, generating labels")
	}

	return l.generate(ctx, issue), false
}

func (l *Labeler) generate(ctx context.Context, issue *Issue) []string {
	log := l.Log.With("issue", issue.ID, "repo", issue.FullRepo())

	catalog, err := l.Meta.LabelCatalog(ctx, issue.RepositoryURL)
	if err != nil {
		log.Warn("label catalog unavailable", "error", err)
		catalog = nil
	}

	var examples []labelExample
	for _, label := range catalog {
		example, err := l.Meta.ExampleIssueForLabel(ctx, issue.RepositoryURL, label.Name)
		if err != nil {
			log.Debug("example issue unavailable", "label", label.Name, "error", err)
			continue
		}
		if example == nil {
			continue
		}
		examples = append(examples, labelExample{Label: label.Name, Example: example})
	}

	prompt := (&labelContext{
		issue:    issue,
		catalog:  catalog,
		examples: examples,
	}).Prompt()

	router := l.Router
	if router == nil {
		router = &Router{}
	}
	route := router.Route(TaskLabeling, countTokens(prompt))

	resp, err := l.LLM.Complete(ctx, route.Model, prompt)
	if err != nil {
		log.Error("label generation failed", "model", route.Model, "error", err)
		return []string{}
	}

	labels := splitLabels(resp)
	log.Info("generated labels", "model", route.Model, "labels", labels)
	return labels
}
