package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/issuekit/triage/vecstore"
)

// DefaultThreshold is the similarity fraction at or above which a prior
// issue counts as a cache hit. The comparison is >=, so a match at exactly
// the threshold is a hit.
const DefaultThreshold = 0.92

// Embedder turns text into a fixed-width vector. An empty vector is a
// failure, never a valid embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the nearest-neighbor oracle the engine runs against.
// *vecstore.Store implements it.
type VectorIndex interface {
	Insert(ctx context.Context, rec vecstore.Record) error
	NearestNeighbors(ctx context.Context, queryEmbedding []float32, k int) ([]vecstore.Neighbor, error)
	Metadata(ctx context.Context, id string) (map[string]string, error)
}

// Match pairs a previously stored issue snapshot with its similarity to the
// query. Similarity is a 0.0-1.0 fraction, Score the rounded percentage.
type Match struct {
	Issue      Issue
	Similarity float64
	Score      int
}

// Engine answers "has an equivalent issue already been labeled?" and keeps
// the similarity corpus current.
type Engine struct {
	Log   *slog.Logger
	Embed Embedder
	Index VectorIndex
}

// FindHighConfidenceMatch embeds text, queries the single nearest neighbor
// and returns it only if its similarity clears threshold. It never mutates
// the corpus, so callers can use it as a pre-flight check without side
// effects.
//
// A (nil, nil) return is a miss: empty index, or top match below threshold.
// A non-nil error means the lookup itself failed (embedding or index);
// callers route both outcomes to the same fallback.
func (e *Engine) FindHighConfidenceMatch(ctx context.Context, inputText string, threshold float64) (*Match, error) {
	embedding, err := e.Embed.Embed(ctx, inputText)
	if err != nil {
		return nil, fmt.Errorf("embed input: %w", err)
	}

	neighbors, err := e.Index.NearestNeighbors(ctx, embedding, 1)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbor: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	top := neighbors[0]
	similarity := vecstore.Similarity(top.Distance)
	if similarity < threshold {
		e.Log.Debug("top match below threshold",
			"id", top.ID,
			"similarity", similarity,
			"threshold", threshold,
		)
		return nil, nil
	}

	match, err := e.hydrate(ctx, top)
	if err != nil {
		return nil, fmt.Errorf("hydrate match %q: %w", top.ID, err)
	}
	return match, nil
}

// FindSimilarAndStore is the two-phase search-then-store operation. Phase 1
// queries up to k neighbors against the corpus as it existed before this
// issue; phase 2 inserts the issue's own record unconditionally, even when
// phase 1 found nothing, so every processed issue is visible to future
// searches.
//
// Two near-duplicate issues processed concurrently can each miss the other,
// since both search before either stores. That race is accepted: the corpus
// is a best-effort similarity index, not a deduplication ledger.
func (e *Engine) FindSimilarAndStore(ctx context.Context, issue *Issue, labels []string, k int) ([]Match, error) {
	embedding, err := e.Embed.Embed(ctx, issue.InputText())
	if err != nil {
		return nil, fmt.Errorf("embed issue %s: %w", issue.ID, err)
	}

	neighbors, err := e.Index.NearestNeighbors(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}

	matches := make([]Match, 0, len(neighbors))
	for _, n := range neighbors {
		// A retried delivery may already have stored this issue.
		if n.ID == issue.ID {
			continue
		}
		match, err := e.hydrate(ctx, n)
		if err != nil {
			if errors.Is(err, vecstore.ErrNotFound) {
				e.Log.Warn("no metadata for neighbor", "id", n.ID)
				continue
			}
			return nil, fmt.Errorf("hydrate match %q: %w", n.ID, err)
		}
		matches = append(matches, *match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	err = e.Index.Insert(ctx, vecstore.Record{
		ID:        issue.ID,
		Embedding: embedding,
		Title:     issue.Title,
		Body:      issue.Body,
		URL:       issue.URL,
		Labels:    labels,
	})
	if err != nil {
		return matches, fmt.Errorf("store issue %s: %w", issue.ID, err)
	}
	e.Log.Debug("stored issue in corpus", "id", issue.ID, "labels", labels)

	return matches, nil
}

func (e *Engine) hydrate(ctx context.Context, n vecstore.Neighbor) (*Match, error) {
	fields, err := e.Index.Metadata(ctx, n.ID)
	if err != nil {
		return nil, err
	}
	return &Match{
		Issue: Issue{
			ID:     n.ID,
			Title:  fields["title"],
			Body:   fields["body"],
			URL:    fields["url"],
			Labels: splitLabels(fields["labels"]),
		},
		Similarity: vecstore.Similarity(n.Distance),
		Score:      vecstore.ScorePercent(n.Distance),
	}, nil
}

// ExtractLabels returns the reusable labels of a match: its label list with
// empty and whitespace-only entries removed. An unlabeled match yields an
// empty, non-nil list — a valid cache-hit outcome callers must not treat
// differently from deliberately empty labels.
func ExtractLabels(m *Match) []string {
	labels := []string{}
	if m == nil {
		return labels
	}
	for _, l := range m.Issue.Labels {
		if t := strings.TrimSpace(l); t != "" {
			labels = append(labels, t)
		}
	}
	return labels
}
