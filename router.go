package triage

import "github.com/sashabaranov/go-openai"

// Task classifies an LLM call so the router can pick a model for it.
type Task int

const (
	TaskGeneral Task = iota
	TaskLabeling
	TaskSummarization
)

// longPromptTokens is the prompt size above which summarization is routed to
// the larger model.
const longPromptTokens = 8000

// Route is a routing decision: which model to call and its relative cost.
type Route struct {
	Model      string
	CostWeight float64
}

// Router maps tasks to models. Labeling always gets the strongest model
// because labels feed the permanent corpus; summaries are throwaway and get
// the cheap model unless the prompt is large.
type Router struct {
	LabelModel   string
	SummaryModel string
	LargeModel   string
}

func (r *Router) Route(task Task, promptTokens int) Route {
	switch task {
	case TaskLabeling:
		return Route{Model: r.model(r.LabelModel, openai.GPT4TurboPreview), CostWeight: 1.0}
	case TaskSummarization:
		if promptTokens > longPromptTokens {
			return Route{Model: r.model(r.LargeModel, openai.GPT4TurboPreview), CostWeight: 0.8}
		}
		return Route{Model: r.model(r.SummaryModel, openai.GPT3Dot5Turbo), CostWeight: 0.2}
	default:
		return Route{Model: r.model(r.LabelModel, openai.GPT4TurboPreview), CostWeight: 1.0}
	}
}

func (r *Router) model(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}
