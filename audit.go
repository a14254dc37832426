package triage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
)

// TriageEvent is one audit row per processed issue.
type TriageEvent struct {
	IssueID      string    `bigquery:"issue_id"`
	Repo         string    `bigquery:"repo"`
	Number       int       `bigquery:"number"`
	Title        string    `bigquery:"title"`
	URL          string    `bigquery:"url"`
	Labels       []string  `bigquery:"labels"`
	CacheHit     bool      `bigquery:"cache_hit"`
	SimilarCount int       `bigquery:"similar_count"`
	Summary      string    `bigquery:"summary"`
	ProcessedAt  time.Time `bigquery:"processed_at"`
}

// AuditStage appends a TriageEvent to BigQuery after the chain has run. It
// is only wired into the pipeline when a BigQuery client is configured.
type AuditStage struct {
	Log      *slog.Logger
	BigQuery *bigquery.Client
	Dataset  string
	Table    string
}

func (s *AuditStage) Name() string { return "audit" }

func (s *AuditStage) Process(ctx context.Context, issue *Issue, res *Result) error {
	inserter := s.BigQuery.Dataset(s.Dataset).Table(s.Table).Inserter()
	err := inserter.Put(ctx, TriageEvent{
		IssueID:      issue.ID,
		Repo:         issue.FullRepo(),
		Number:       issue.Number,
		Title:        issue.Title,
		URL:          issue.URL,
		Labels:       res.Labels,
		CacheHit:     res.CacheHit,
		SimilarCount: len(res.Similar),
		Summary:      res.Summary,
		ProcessedAt:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	s.Log.Debug("recorded audit row", "issue", issue.ID)
	return nil
}
