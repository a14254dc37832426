package triage

import (
	"strings"

	"github.com/ammario/prefixsuffix"
	"github.com/tiktoken-go/tokenizer"
)

// maxPromptTokens bounds the generation prompt. Past it, example issues are
// halved until the prompt fits.
const maxPromptTokens = 12000

type labelExample struct {
	Label   string
	Example *IssueContext
}

// labelContext contains and generates the prompt used for label generation.
type labelContext struct {
	issue    *Issue
	catalog  []CatalogLabel
	examples []labelExample
}

func bodySnippet(body string) string {
	saver := prefixsuffix.Saver{
		// Max 1000 characters per issue body.
		N: 500,
	}
	saver.Write([]byte(body))
	return string(saver.Bytes())
}

func countTokens(text string) int {
	enc, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		panic("cl100k tokenizer unavailable")
	}
	ids, _, _ := enc.Encode(text)
	return len(ids)
}

// Prompt renders the generation prompt, pruning example issues until it fits
// the token budget. The catalog itself is never pruned: the model must not
// invent labels outside it.
func (c *labelContext) Prompt() string {
	examples := c.examples
	for {
		prompt := c.render(examples)
		if countTokens(prompt) <= maxPromptTokens || len(examples) == 0 {
			return prompt
		}
		examples = examples[:len(examples)/2]
	}
}

func (c *labelContext) render(examples []labelExample) string {
	var sb strings.Builder

	sb.WriteString("You are an AI triage assistant. Read the following GitHub issue and return relevant labels.\n\n")

	if len(c.catalog) > 0 {
		sb.WriteString("Available labels in this repository:\n")
		for _, label := range c.catalog {
			sb.WriteString("- ")
			sb.WriteString(label.Name)
			if label.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(label.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\nPlease select only from the labels listed above that are relevant to this issue.\n\n")
	} else {
		sb.WriteString("Available labels: ['bug', 'feature', 'question', 'documentation', 'performance', 'regression']\n\n")
	}

	if len(examples) > 0 {
		sb.WriteString("Example issues by label:\n")
		for _, ex := range examples {
			sb.WriteString("- [")
			sb.WriteString(ex.Label)
			sb.WriteString("] ")
			sb.WriteString(ex.Example.Title)
			if body := bodySnippet(ex.Example.Body); body != "" {
				sb.WriteString(" - ")
				sb.WriteString(body)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\nConsider these examples when determining appropriate labels for the current issue.\n\n")
	}

	sb.WriteString("Issue to label:\n---\n")
	sb.WriteString("Title: ")
	sb.WriteString(c.issue.Title)
	sb.WriteString("\nBody: ")
	sb.WriteString(c.issue.Body)
	sb.WriteString("\n---\n")
	sb.WriteString("Return only a list of relevant labels as a comma-separated string.")

	return sb.String()
}
