package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ammario/tlru"
	"github.com/beatlabs/github-auth/app"
	"github.com/google/go-github/v59/github"

	"github.com/issuekit/triage/ghapi"
)

// GitHubOrigin fetches repository metadata through the GitHub App
// installation that owns the repository.
type GitHubOrigin struct {
	Log       *slog.Logger
	AppConfig *app.Config

	installIDs *tlru.Cache[string, int64]
}

func NewGitHubOrigin(log *slog.Logger, appConfig *app.Config) *GitHubOrigin {
	return &GitHubOrigin{
		Log:        log,
		AppConfig:  appConfig,
		installIDs: tlru.New[string, int64](tlru.ConstantCost, 4096),
	}
}

func (g *GitHubOrigin) client(ctx context.Context, owner, repo string) (*github.Client, error) {
	installID, err := g.installIDs.Do(owner+"/"+repo, func() (int64, error) {
		return ghapi.InstallIDForRepo(ctx, g.AppConfig.Client(), owner, repo)
	}, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("resolve install for %s/%s: %w", owner, repo, err)
	}

	instConfig, err := g.AppConfig.InstallationConfig(strconv.FormatInt(installID, 10))
	if err != nil {
		return nil, fmt.Errorf("get installation config: %w", err)
	}
	return github.NewClient(instConfig.Client(ctx)), nil
}

func (g *GitHubOrigin) FetchLabelCatalog(ctx context.Context, repoURL string) ([]CatalogLabel, error) {
	owner, repo, ok := ParseOwnerRepo(repoURL)
	if !ok {
		return nil, fmt.Errorf("unparseable repository URL %q", repoURL)
	}

	client, err := g.client(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	labels, err := ghapi.Page(
		ctx,
		func(ctx context.Context, opt *github.ListOptions) ([]*github.Label, *github.Response, error) {
			return client.Issues.ListLabels(ctx, owner, repo, opt)
		},
		300,
	)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}

	catalog := make([]CatalogLabel, 0, len(labels))
	for _, l := range labels {
		catalog = append(catalog, CatalogLabel{
			Name:        l.GetName(),
			Description: l.GetDescription(),
		})
	}
	return catalog, nil
}

// FetchExampleIssue returns the most recently updated true issue carrying
// the label, or nil when the repository has none.
func (g *GitHubOrigin) FetchExampleIssue(ctx context.Context, repoURL, label string) (*IssueContext, error) {
	owner, repo, ok := ParseOwnerRepo(repoURL)
	if !ok {
		return nil, fmt.Errorf("unparseable repository URL %q", repoURL)
	}

	client, err := g.client(ctx, owner, repo)
	if err != nil {
		return nil, err
	}

	issues, _, err := client.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		State:     "all",
		Labels:    []string{label},
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{
			// A few extra in case the top hits are pull requests.
			PerPage: 5,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list issues for label %q: %w", label, err)
	}

	issues = ghapi.OnlyTrueIssues(issues)
	if len(issues) == 0 {
		return nil, nil
	}
	return &IssueContext{
		Title: issues[0].GetTitle(),
		Body:  issues[0].GetBody(),
	}, nil
}
