package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const fallbackSummary = "Unable to generate summary at this time."

// Summarizer produces the short triage summary included in notifications.
type Summarizer struct {
	Log    *slog.Logger
	LLM    Completer
	Router *Router
}

// Summarize returns a 1-3 sentence summary of the issue, enriched with the
// titles of similar issues when available. It never fails: when the
// contextual call breaks it retries once without the similar-issue context,
// and a second failure yields a fixed fallback string.
func (s *Summarizer) Summarize(ctx context.Context, issue *Issue, labels []string, similar []Match) string {
	resp, err := s.complete(ctx, issue, labels, similar)
	if err != nil && len(similar) > 0 {
		s.Log.Warn("contextual summary failed, retrying without context",
			"issue", issue.ID,
			"error", err,
		)
		resp, err = s.complete(ctx, issue, labels, nil)
	}
	if err != nil {
		s.Log.Error("summary generation failed", "issue", issue.ID, "error", err)
		return fallbackSummary
	}
	return cleanSummary(resp)
}

func (s *Summarizer) complete(ctx context.Context, issue *Issue, labels []string, similar []Match) (string, error) {
	prompt := summaryPrompt(issue, labels, similar)

	router := s.Router
	if router == nil {
		router = &Router{}
	}
	route := router.Route(TaskSummarization, countTokens(prompt))

	return s.LLM.Complete(ctx, route.Model, prompt)
}

func summaryPrompt(issue *Issue, labels []string, similar []Match) string {
	labelsContext := "none"
	if len(labels) > 0 {
		labelsContext = strings.Join(labels, ", ")
	}

	var similarContext strings.Builder
	if len(similar) > 0 {
		similarContext.WriteString("\n\nSimilar issues found:\n")
		for i, m := range similar {
			if i == 3 {
				break
			}
			fmt.Fprintf(&similarContext, "- %s\n", m.Issue.Title)
		}
	}

	return fmt.Sprintf(`You are an AI assistant helping with GitHub issue triage. Provide a concise, professional summary of the following GitHub issue.

The summary should:
- Be 1-3 sentences maximum
- Focus on the core problem or request
- Be written in a clear, technical tone
- Consider the context of similar issues if relevant
- Help maintainers quickly understand the issue

Issue details:
---
Title: %s
Body: %s
Generated labels: %s%s
---

Provide only the summary, no additional text or formatting.`,
		issue.Title, issue.Body, labelsContext, similarContext.String())
}

// cleanSummary strips boilerplate the model tends to wrap summaries in and
// caps the length for the notification channel.
func cleanSummary(response string) string {
	cleaned := strings.TrimSpace(response)
	for _, prefix := range []string{"Summary:", "Here's a summary:", "The summary is:"} {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
		}
	}
	if len(cleaned) >= 2 && strings.HasPrefix(cleaned, `"`) && strings.HasSuffix(cleaned, `"`) {
		cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
	}
	if len(cleaned) > 500 {
		cleaned = cleaned[:497] + "..."
	}
	if cleaned == "" {
		return "No summary available."
	}
	return cleaned
}
