package triage

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeOrigin struct {
	catalog      []CatalogLabel
	catalogErr   error
	catalogCalls int

	example      *IssueContext
	exampleErr   error
	exampleCalls int
}

func (f *fakeOrigin) FetchLabelCatalog(_ context.Context, _ string) ([]CatalogLabel, error) {
	f.catalogCalls++
	return f.catalog, f.catalogErr
}

func (f *fakeOrigin) FetchExampleIssue(_ context.Context, _, _ string) (*IssueContext, error) {
	f.exampleCalls++
	return f.example, f.exampleErr
}

const testRepoURL = "https://api.github.com/repos/org/repo"

func TestMetaCache_LabelCatalog_Cached(t *testing.T) {
	origin := &fakeOrigin{
		catalog: []CatalogLabel{{Name: "bug"}, {Name: "feature", Description: "new stuff"}},
	}
	cache := NewMetaCache(testLogger(), origin)

	for i := 0; i < 3; i++ {
		labels, err := cache.LabelCatalog(context.Background(), testRepoURL)
		if err != nil {
			t.Fatalf("LabelCatalog: %v", err)
		}
		if len(labels) != 2 {
			t.Fatalf("got %d labels, want 2", len(labels))
		}
	}

	if origin.catalogCalls != 1 {
		t.Errorf("origin fetched %d times, want 1", origin.catalogCalls)
	}
}

func TestMetaCache_LabelCatalog_EmptyNotCached(t *testing.T) {
	origin := &fakeOrigin{catalog: []CatalogLabel{}}
	cache := NewMetaCache(testLogger(), origin)

	for i := 0; i < 2; i++ {
		labels, err := cache.LabelCatalog(context.Background(), testRepoURL)
		if err != nil {
			t.Fatalf("LabelCatalog: %v", err)
		}
		if labels == nil {
			t.Fatal("got nil catalog, want empty slice")
		}
		if len(labels) != 0 {
			t.Fatalf("got %d labels, want 0", len(labels))
		}
	}

	// An empty catalog must be refetched every time, not cached for the TTL.
	if origin.catalogCalls != 2 {
		t.Errorf("origin fetched %d times, want 2", origin.catalogCalls)
	}
}

func TestMetaCache_LabelCatalog_OriginError(t *testing.T) {
	origin := &fakeOrigin{catalogErr: errors.New("github down")}
	cache := NewMetaCache(testLogger(), origin)

	_, err := cache.LabelCatalog(context.Background(), testRepoURL)
	if err == nil {
		t.Fatal("expected origin error to propagate")
	}
}

func TestMetaCache_ExampleIssue_Cached(t *testing.T) {
	origin := &fakeOrigin{
		example: &IssueContext{Title: "crash on boot", Body: "stack trace"},
	}
	cache := NewMetaCache(testLogger(), origin)

	for i := 0; i < 3; i++ {
		example, err := cache.ExampleIssueForLabel(context.Background(), testRepoURL, "bug")
		if err != nil {
			t.Fatalf("ExampleIssueForLabel: %v", err)
		}
		if example == nil || example.Title != "crash on boot" {
			t.Fatalf("example = %+v", example)
		}
	}

	if origin.exampleCalls != 1 {
		t.Errorf("origin fetched %d times, want 1", origin.exampleCalls)
	}
}

func TestMetaCache_ExampleIssue_AbsentNotCached(t *testing.T) {
	origin := &fakeOrigin{}
	cache := NewMetaCache(testLogger(), origin)

	for i := 0; i < 2; i++ {
		example, err := cache.ExampleIssueForLabel(context.Background(), testRepoURL, "bug")
		if err != nil {
			t.Fatalf("ExampleIssueForLabel: %v", err)
		}
		if example != nil {
			t.Fatalf("example = %+v, want nil", example)
		}
	}

	if origin.exampleCalls != 2 {
		t.Errorf("origin fetched %d times, want 2", origin.exampleCalls)
	}
}

func TestMetaCache_ExampleIssue_KeyedPerLabel(t *testing.T) {
	origin := &fakeOrigin{example: &IssueContext{Title: "t"}}
	cache := NewMetaCache(testLogger(), origin)

	for _, label := range []string{"bug", "feature", "bug"} {
		if _, err := cache.ExampleIssueForLabel(context.Background(), testRepoURL, label); err != nil {
			t.Fatalf("ExampleIssueForLabel(%q): %v", label, err)
		}
	}

	// Distinct labels fetch separately; the repeat hits the cache.
	if origin.exampleCalls != 2 {
		t.Errorf("origin fetched %d times, want 2", origin.exampleCalls)
	}
}

// corruptSnaps simulates a snapshot store whose entries no longer parse.
type corruptSnaps struct{}

func (corruptSnaps) Do(_ metaKey, _ func() (string, error), _ time.Duration) (string, error) {
	return "{not json", nil
}

func TestMetaCache_CorruptSnapshotRefetches(t *testing.T) {
	origin := &fakeOrigin{
		catalog: []CatalogLabel{{Name: "bug"}},
		example: &IssueContext{Title: "t"},
	}
	cache := &MetaCache{Log: testLogger(), Origin: origin, snaps: corruptSnaps{}}

	labels, err := cache.LabelCatalog(context.Background(), testRepoURL)
	if err != nil {
		t.Fatalf("LabelCatalog: %v", err)
	}
	if len(labels) != 1 || labels[0].Name != "bug" {
		t.Errorf("labels = %v, want direct refetch result", labels)
	}
	if origin.catalogCalls != 1 {
		t.Errorf("origin fetched %d times, want 1 direct refetch", origin.catalogCalls)
	}

	example, err := cache.ExampleIssueForLabel(context.Background(), testRepoURL, "bug")
	if err != nil {
		t.Fatalf("ExampleIssueForLabel: %v", err)
	}
	if example == nil || example.Title != "t" {
		t.Errorf("example = %+v, want direct refetch result", example)
	}
}

func TestMetaCache_CorruptSnapshotDoubleFailure(t *testing.T) {
	origin := &fakeOrigin{
		catalogErr: errors.New("github down"),
		exampleErr: errors.New("github down"),
	}
	cache := &MetaCache{Log: testLogger(), Origin: origin, snaps: corruptSnaps{}}

	// Corrupt snapshot plus failed refetch degrades to absent, not an error.
	labels, err := cache.LabelCatalog(context.Background(), testRepoURL)
	if err != nil {
		t.Fatalf("LabelCatalog: %v", err)
	}
	if labels == nil || len(labels) != 0 {
		t.Errorf("labels = %v, want empty slice", labels)
	}

	example, err := cache.ExampleIssueForLabel(context.Background(), testRepoURL, "bug")
	if err != nil {
		t.Fatalf("ExampleIssueForLabel: %v", err)
	}
	if example != nil {
		t.Errorf("example = %+v, want nil", example)
	}
}

func TestParseOwnerRepo(t *testing.T) {
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"https://api.github.com/repos/org/repo", "org", "repo", true},
		{"https://github.com/org/repo", "org", "repo", true},
		{"https://github.com/org/repo/issues/42", "org", "repo", true},
		{"https://example.com/something", "", "", false},
		{"https://github.com/org", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, ok := ParseOwnerRepo(tt.url)
			if ok != tt.wantOK || owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("ParseOwnerRepo(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.url, owner, repo, ok, tt.wantOwner, tt.wantRepo, tt.wantOK)
			}
		})
	}
}

func TestRepoKey_UnparseableURLStillCaches(t *testing.T) {
	a := repoKey("not a url at all")
	b := repoKey("not a url at all")
	if a != b {
		t.Errorf("repoKey not stable: %q != %q", a, b)
	}
	if a == repoKey("a different string") {
		t.Error("distinct URLs share a key")
	}
}
