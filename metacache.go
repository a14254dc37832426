package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/ammario/tlru"
)

// TTLs for the two metadata tiers. Label taxonomies are near-static; the
// issues behind them churn, so per-label examples expire twice as fast.
const (
	labelCatalogTTL = time.Hour
	exampleIssueTTL = 30 * time.Minute
)

// CatalogLabel is one entry of a repository's label catalog.
type CatalogLabel struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// IssueContext is the slice of an issue fed into generation prompts.
type IssueContext struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Origin fetches repository metadata from its source of truth. MetaCache
// shields it from repeated calls.
type Origin interface {
	FetchLabelCatalog(ctx context.Context, repoURL string) ([]CatalogLabel, error)
	FetchExampleIssue(ctx context.Context, repoURL, label string) (*IssueContext, error)
}

type metaKey struct {
	Repo  string
	Kind  string
	Label string
}

// snapshotCache is the TTL store under MetaCache. Snapshots are serialized
// so a corrupt entry is detectable and recoverable per resource.
type snapshotCache interface {
	Do(key metaKey, fetch func() (string, error), ttl time.Duration) (string, error)
}

type tlruSnapshots struct {
	cache *tlru.Cache[metaKey, string]
}

func (c *tlruSnapshots) Do(key metaKey, fetch func() (string, error), ttl time.Duration) (string, error) {
	return c.cache.Do(key, fetch, ttl)
}

// Sentinel errors keep degenerate origin results out of the cache: tlru only
// stores successful fetches, so a transient empty result is retried on the
// next request instead of being cached until expiry.
var (
	errEmptyCatalog = errors.New("empty label catalog")
	errNoExample    = errors.New("no example issue for label")
)

// MetaCache is the two-tier TTL cache over repository metadata.
type MetaCache struct {
	Log    *slog.Logger
	Origin Origin

	snaps snapshotCache
}

func NewMetaCache(log *slog.Logger, origin Origin) *MetaCache {
	return &MetaCache{
		Log:    log,
		Origin: origin,
		snaps: &tlruSnapshots{
			cache: tlru.New[metaKey](func(s string) int {
				return len(s)
			}, 1<<24),
		},
	}
}

// LabelCatalog returns the repository's label catalog, fetching from origin
// at most once per TTL. Empty catalogs are returned but never cached.
func (m *MetaCache) LabelCatalog(ctx context.Context, repoURL string) ([]CatalogLabel, error) {
	key := metaKey{Repo: repoKey(repoURL), Kind: "labels"}

	payload, err := m.snaps.Do(key, func() (string, error) {
		labels, err := m.Origin.FetchLabelCatalog(ctx, repoURL)
		if err != nil {
			return "", err
		}
		if len(labels) == 0 {
			return "", errEmptyCatalog
		}
		b, err := json.Marshal(labels)
		if err != nil {
			return "", fmt.Errorf("marshal catalog: %w", err)
		}
		return string(b), nil
	}, labelCatalogTTL)
	if errors.Is(err, errEmptyCatalog) {
		return []CatalogLabel{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("label catalog for %q: %w", key.Repo, err)
	}

	var labels []CatalogLabel
	if err := json.Unmarshal([]byte(payload), &labels); err != nil {
		m.Log.Warn("corrupt label catalog snapshot, refetching",
			"repo", key.Repo, "error", err)
		labels, err = m.Origin.FetchLabelCatalog(ctx, repoURL)
		if err != nil {
			// Treated as absent for this request only.
			return []CatalogLabel{}, nil
		}
	}
	return labels, nil
}

// ExampleIssueForLabel returns one example issue carrying the label, or nil
// when the repository has none. Same hit/miss/store pattern as the catalog
// with the shorter TTL.
func (m *MetaCache) ExampleIssueForLabel(ctx context.Context, repoURL, label string) (*IssueContext, error) {
	key := metaKey{Repo: repoKey(repoURL), Kind: "example", Label: label}

	payload, err := m.snaps.Do(key, func() (string, error) {
		example, err := m.Origin.FetchExampleIssue(ctx, repoURL, label)
		if err != nil {
			return "", err
		}
		if example == nil {
			return "", errNoExample
		}
		b, err := json.Marshal(example)
		if err != nil {
			return "", fmt.Errorf("marshal example: %w", err)
		}
		return string(b), nil
	}, exampleIssueTTL)
	if errors.Is(err, errNoExample) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("example issue for %q label %q: %w", key.Repo, label, err)
	}

	var example IssueContext
	if err := json.Unmarshal([]byte(payload), &example); err != nil {
		m.Log.Warn("corrupt example issue snapshot, refetching",
			"repo", key.Repo, "label", label, "error", err)
		refetched, err := m.Origin.FetchExampleIssue(ctx, repoURL, label)
		if err != nil {
			return nil, nil
		}
		return refetched, nil
	}
	return &example, nil
}

// repoKey normalizes a repository URL to "owner/repo". When the URL doesn't
// parse, a stable hash of it keeps caching working instead of disabling it.
func repoKey(repoURL string) string {
	if owner, repo, ok := ParseOwnerRepo(repoURL); ok {
		return owner + "/" + repo
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(repoURL))
	return fmt.Sprintf("url-%08x", h.Sum32())
}

// ParseOwnerRepo extracts (owner, repo) from an API or HTML repository URL,
// e.g. https://api.github.com/repos/owner/repo or
// https://github.com/owner/repo/issues/1.
func ParseOwnerRepo(repoURL string) (owner, repo string, ok bool) {
	var path string
	if _, rest, found := strings.Cut(repoURL, "/repos/"); found {
		path = rest
	} else if _, rest, found := strings.Cut(repoURL, "github.com/"); found {
		path = rest
	} else {
		return "", "", false
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
