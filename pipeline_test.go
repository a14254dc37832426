package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/issuekit/triage/vecstore"
)

type recordStage struct {
	name string
	fn   func(issue *Issue, res *Result) error

	order *[]string
}

func (s *recordStage) Name() string { return s.name }

func (s *recordStage) Process(_ context.Context, issue *Issue, res *Result) error {
	*s.order = append(*s.order, s.name)
	if s.fn != nil {
		return s.fn(issue, res)
	}
	return nil
}

func TestPipeline_StagesRunInOrder(t *testing.T) {
	var order []string
	p := NewPipeline(testLogger(),
		&recordStage{name: "labeling", order: &order},
		&recordStage{name: "similarity-search", order: &order},
		&recordStage{name: "summarization", order: &order},
		&recordStage{name: "notification", order: &order},
	)

	p.Process(context.Background(), testIssue())

	want := []string{"labeling", "similarity-search", "summarization", "notification"}
	if len(order) != len(want) {
		t.Fatalf("ran %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("ran %v, want %v", order, want)
		}
	}
}

func TestPipeline_StageFailureDoesNotAbort(t *testing.T) {
	var order []string
	p := NewPipeline(testLogger(),
		&recordStage{name: "labeling", order: &order, fn: func(_ *Issue, res *Result) error {
			res.Labels = []string{"bug"}
			return nil
		}},
		&recordStage{name: "similarity-search", order: &order, fn: func(_ *Issue, _ *Result) error {
			return errors.New("index unavailable")
		}},
		&recordStage{name: "notification", order: &order},
	)

	res := p.Process(context.Background(), testIssue())

	if len(order) != 3 {
		t.Fatalf("ran %v, want all 3 stages", order)
	}
	if len(res.Labels) != 1 || res.Labels[0] != "bug" {
		t.Errorf("labels = %v, want [bug]: earlier stage results survive a later failure", res.Labels)
	}
}

func TestPipeline_ResultLabelsNeverNil(t *testing.T) {
	p := NewPipeline(testLogger())
	res := p.Process(context.Background(), testIssue())
	if res.Labels == nil {
		t.Error("Labels = nil, want empty slice")
	}
}

func TestSearchStage_RecordsMatchesEvenOnError(t *testing.T) {
	index := &fakeIndex{
		neighbors: []vecstore.Neighbor{{ID: "9", Distance: 0.3}},
		meta:      map[string]map[string]string{"9": {"title": "t"}},
		insertErr: errors.New("upsert failed"),
	}
	stage := &SearchStage{Engine: newTestEngine(index)}

	res := &Result{}
	err := stage.Process(context.Background(), testIssue(), res)
	if err == nil {
		t.Fatal("expected the store error to surface")
	}
	if len(res.Similar) != 1 {
		t.Errorf("Similar = %v, want the found match despite the failed store", res.Similar)
	}
}

func TestSearchStage_DefaultK(t *testing.T) {
	index := &fakeIndex{}
	stage := &SearchStage{Engine: newTestEngine(index)}

	if err := stage.Process(context.Background(), testIssue(), &Result{}); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(index.inserted) != 1 {
		t.Errorf("inserted %d records, want 1", len(index.inserted))
	}
}
