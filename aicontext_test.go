package triage

import (
	"strings"
	"testing"
)

func TestLabelContext_Prompt(t *testing.T) {
	c := &labelContext{
		issue: testIssue(),
		catalog: []CatalogLabel{
			{Name: "bug", Description: "something is broken"},
			{Name: "feature"},
		},
		examples: []labelExample{
			{Label: "bug", Example: &IssueContext{Title: "panic in parser", Body: "stack"}},
		},
	}

	prompt := c.Prompt()

	for _, want := range []string{
		"bug: something is broken",
		"- feature",
		"[bug] panic in parser",
		"Title: App crashes on startup",
		"comma-separated string",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestLabelContext_Prompt_FallbackLabels(t *testing.T) {
	c := &labelContext{issue: testIssue()}

	prompt := c.Prompt()
	if !strings.Contains(prompt, "'bug', 'feature', 'question'") {
		t.Errorf("prompt missing default labels:\n%s", prompt)
	}
}

func TestLabelContext_Prompt_PrunesExamplesToBudget(t *testing.T) {
	big := strings.Repeat("lorem ipsum dolor sit amet ", 2000)

	var examples []labelExample
	for i := 0; i < 8; i++ {
		examples = append(examples, labelExample{
			Label:   "bug",
			Example: &IssueContext{Title: "t", Body: big},
		})
	}

	c := &labelContext{
		issue:    testIssue(),
		catalog:  []CatalogLabel{{Name: "bug"}},
		examples: examples,
	}

	prompt := c.Prompt()
	if got := countTokens(prompt); got > maxPromptTokens {
		t.Errorf("prompt is %d tokens, want <= %d", got, maxPromptTokens)
	}
	if !strings.Contains(prompt, "Title: App crashes on startup") {
		t.Error("pruning removed the issue itself")
	}
}

func TestBodySnippet(t *testing.T) {
	long := strings.Repeat("x", 5000)
	snippet := bodySnippet(long)
	if len(snippet) >= len(long) {
		t.Errorf("snippet length = %d, want shorter than %d", len(snippet), len(long))
	}

	short := "short body"
	if got := bodySnippet(short); got != short {
		t.Errorf("bodySnippet(%q) = %q", short, got)
	}
}
