package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/coder/serpent"
	"github.com/google/go-github/v59/github"

	"github.com/issuekit/triage"
	"github.com/issuekit/triage/ghapi"
)

type replayStats struct {
	nIssues   int
	cacheHits int

	labels []string
	tooks  []time.Duration
}

func (s *replayStats) process(start time.Time, res *triage.Result) {
	s.nIssues++
	if res.CacheHit {
		s.cacheHits++
	}
	s.labels = append(s.labels, res.Labels...)
	s.tooks = append(s.tooks, time.Since(start))
}

func uniqCount(ss []string) map[string]int {
	m := make(map[string]int)
	for _, s := range ss {
		m[s]++
	}
	return m
}

type KV[Key any, Value any] struct {
	Key   Key
	Value Value
}

func topN(m map[string]int, n int) []KV[string, int] {
	var kvs []KV[string, int]
	for k, v := range m {
		kvs = append(kvs, KV[string, int]{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool {
		return kvs[i].Value > kvs[j].Value
	})
	if len(kvs) < n {
		n = len(kvs)
	}
	return kvs[:n]
}

func (kv *KV[Key, Value]) String() string {
	return fmt.Sprintf("%v: %v", kv.Key, kv.Value)
}

func (s *replayStats) print(w io.Writer) error {
	twr := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	fmt.Fprintf(twr, "Total issues:\t%d\n", s.nIssues)
	fmt.Fprintf(twr, "Cache hits:\t%d\t%.2f%%\n", s.cacheHits, float64(s.cacheHits)/float64(s.nIssues)*100)
	fmt.Fprintf(twr, "Labels assigned:\t%d\n", len(s.labels))
	fmt.Fprintf(twr, "Top labels:\t%v\n", topN(uniqCount(s.labels), 20))

	var total time.Duration
	for _, took := range s.tooks {
		total += took
	}
	if len(s.tooks) > 0 {
		fmt.Fprintf(twr, "Mean took:\t%v\n", (total / time.Duration(len(s.tooks))).Truncate(time.Millisecond))
	}
	return twr.Flush()
}

// replayCmd runs recent issues of a repository through the full pipeline as
// if they had just been opened. Useful for warming the corpus and measuring
// the cache-hit rate against real data.
func (r *rootCmd) replayCmd() *serpent.Command {
	var (
		installID string
		owner     string
		repo      string
		nIssues   int64
	)
	return &serpent.Command{
		Use:   "replay",
		Short: "Replay recent issues of a repo through the triage pipeline",
		Handler: func(inv *serpent.Invocation) error {
			log := newLogger()

			ctx := inv.Context()

			// Replays never notify.
			r.slackWebhook = ""

			pipeline, store, err := r.pipeline(ctx, log)
			if err != nil {
				return err
			}
			defer store.Close()

			appConfig, err := r.appConfig()
			if err != nil {
				return err
			}
			instConfig, err := appConfig.InstallationConfig(installID)
			if err != nil {
				return fmt.Errorf("get installation config: %w", err)
			}

			githubClient := github.NewClient(instConfig.Client(ctx))

			replayIssues, err := ghapi.Page(
				ctx,
				func(ctx context.Context, opt *github.ListOptions) ([]*github.Issue, *github.Response, error) {
					log.Info("load issues page from GitHub")
					issues, resp, err := githubClient.Issues.ListByRepo(
						ctx,
						owner,
						repo,
						&github.IssueListByRepoOptions{
							State:       "all",
							ListOptions: *opt,
						},
					)

					return ghapi.OnlyTrueIssues(issues), resp, err
				},
				int(nIssues),
			)
			if err != nil {
				return fmt.Errorf("list issues: %w", err)
			}

			var (
				st        replayStats
				stMu      sync.Mutex
				semaphore = make(chan struct{}, 4)
			)

			for i, ghIssue := range replayIssues {
				var (
					ghIssue = ghIssue
					i       = i
				)

				semaphore <- struct{}{}
				go func() {
					defer func() {
						<-semaphore
					}()

					ctx, cancel := context.WithTimeout(ctx, time.Minute)
					defer cancel()

					start := time.Now()

					issue := &triage.Issue{
						ID:            triage.DeriveIssueID(ghIssue.GetNumber(), ghIssue.GetHTMLURL(), ghIssue.GetTitle()),
						Number:        ghIssue.GetNumber(),
						Title:         ghIssue.GetTitle(),
						Body:          ghIssue.GetBody(),
						URL:           ghIssue.GetHTMLURL(),
						RepositoryURL: ghIssue.GetRepositoryURL(),
						Owner:         owner,
						Repo:          repo,
					}

					res := pipeline.Process(ctx, issue)

					stMu.Lock()
					defer stMu.Unlock()

					log.Info("replayed issue",
						"i", i,
						"title", issue.Title,
						"url", issue.URL,
						"took", time.Since(start).Truncate(time.Millisecond/10),
						"num", issue.Number,
						"cache_hit", res.CacheHit,
					)
					st.process(start, res)
				}()
			}

			for len(semaphore) > 0 {
				time.Sleep(time.Second)
			}

			return st.print(inv.Stdout)
		},
		Options: []serpent.Option{
			{
				Flag:  "install-id",
				Value: serpent.StringOf(&installID),
			},
			{
				Flag:  "owner",
				Value: serpent.StringOf(&owner),
			},
			{
				Flag:  "repo",
				Value: serpent.StringOf(&repo),
			},
			{
				Flag:        "n-issues",
				Description: "Number of issues to replay.",
				Value:       serpent.Int64Of(&nIssues),
				Default:     "10",
			},
		},
	}
}
