package main

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/compute/metadata"
	"github.com/beatlabs/github-auth/app"
	appkey "github.com/beatlabs/github-auth/key"
	"github.com/coder/serpent"
	"github.com/jussi-kalliokoski/slogdriver"
	"github.com/lmittmann/tint"
	"github.com/sashabaranov/go-openai"

	"github.com/issuekit/triage"
	"github.com/issuekit/triage/vecstore"
)

func newLogger() *slog.Logger {
	gcpProjectID, err := metadata.ProjectID()
	if err != nil {
		logOpts := &tint.Options{
			AddSource:  true,
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen + " 05.999",
		}
		return slog.New(tint.NewHandler(os.Stderr, logOpts))
	}

	return slog.New(
		slogdriver.NewHandler(
			os.Stderr,
			slogdriver.Config{
				ProjectID: gcpProjectID,
				Level:     slog.LevelDebug,
			},
		),
	)
}

type rootCmd struct {
	appPEMFile   string
	appPEMEnv    string
	appID        string
	openAIKey    string
	labelModel   string
	summaryModel string
	bindAddr     string

	qdrantURL    string
	qdrantAPIKey string
	collection   string

	webhookSecret string
	slackWebhook  string

	threshold string
	searchK   int64

	bqProject string
	bqDataset string
	bqTable   string
}

func (r *rootCmd) appConfig() (*app.Config, error) {
	var (
		err    error
		appKey *rsa.PrivateKey
	)
	if r.appPEMEnv != "" {
		appKey, err = appkey.Parse([]byte(r.appPEMEnv))
		if err != nil {
			return nil, fmt.Errorf("parse app key: %w", err)
		}
	} else {
		appKey, err = appkey.FromFile(r.appPEMFile)
		if err != nil {
			return nil, fmt.Errorf("load app key: %w", err)
		}
	}

	appConfig, err := app.NewConfig(r.appID, appKey)
	if err != nil {
		return nil, fmt.Errorf("create app config: %w", err)
	}

	return appConfig, nil
}

func (r *rootCmd) ai(ctx context.Context) (*openai.Client, error) {
	openAIKey := strings.TrimSpace(r.openAIKey)

	oai := openai.NewClient(openAIKey)

	// Validate the OpenAI API key.
	_, err := oai.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	return openai.NewClient(openAIKey), nil
}

// pipeline wires every triage component from flags. The returned store must
// be closed by the caller.
func (r *rootCmd) pipeline(ctx context.Context, log *slog.Logger) (*triage.Pipeline, *vecstore.Store, error) {
	threshold, err := strconv.ParseFloat(r.threshold, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("parse similarity-threshold: %w", err)
	}
	if threshold <= 0 || threshold > 1 {
		return nil, nil, fmt.Errorf("similarity-threshold must be in (0, 1], got %v", threshold)
	}

	oai, err := r.ai(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("openai: %w", err)
	}

	appConfig, err := r.appConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("app config: %w", err)
	}

	store, err := vecstore.New(log, vecstore.Config{
		URL:        r.qdrantURL,
		APIKey:     r.qdrantAPIKey,
		Collection: r.collection,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}
	if err := store.EnsureIndex(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("ensure index: %w", err)
	}

	engine := &triage.Engine{
		Log:   log,
		Embed: &triage.OpenAIEmbedder{Client: oai},
		Index: store,
	}
	router := &triage.Router{
		LabelModel:   r.labelModel,
		SummaryModel: r.summaryModel,
	}
	completer := &triage.OpenAICompleter{Log: log, Client: oai}
	meta := triage.NewMetaCache(log, triage.NewGitHubOrigin(log, appConfig))

	stages := []triage.Stage{
		&triage.LabelStage{
			Labeler: &triage.Labeler{
				Log:       log,
				Matcher:   engine,
				Meta:      meta,
				LLM:       completer,
				Router:    router,
				Threshold: threshold,
			},
		},
		&triage.SearchStage{Engine: engine, K: int(r.searchK)},
		&triage.SummaryStage{
			Summarizer: &triage.Summarizer{Log: log, LLM: completer, Router: router},
		},
		&triage.NotifyStage{
			Notifier: &triage.SlackNotifier{Log: log, WebhookURL: r.slackWebhook},
		},
	}

	if r.bqProject != "" {
		bq, err := bigquery.NewClient(ctx, r.bqProject)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("bigquery: %w", err)
		}
		stages = append(stages, &triage.AuditStage{
			Log:      log,
			BigQuery: bq,
			Dataset:  r.bqDataset,
			Table:    r.bqTable,
		})
	}

	return triage.NewPipeline(log, stages...), store, nil
}

func main() {
	log := newLogger()
	var root rootCmd
	cmd := &serpent.Command{
		Use:   "triaged",
		Short: "triaged is the GitHub issue triage backend service",
		Children: []*serpent.Command{
			root.replayCmd(),
		},
		Handler: func(inv *serpent.Invocation) error {
			log.Debug("starting triaged")
			if root.appPEMFile == "" && root.appPEMEnv == "" {
				return fmt.Errorf("app-pem-file is required")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pipeline, store, err := root.pipeline(ctx, log)
			if err != nil {
				return err
			}
			defer store.Close()

			bindAddr := root.bindAddr
			// support Cloud Run
			port := os.Getenv("PORT")
			if port != "" {
				bindAddr = ":" + port
			}

			listener, err := net.Listen("tcp", bindAddr)
			if err != nil {
				return fmt.Errorf("listen: %w", err)
			}
			log.Info("listening", "addr", listener.Addr())

			go func() {
				<-ctx.Done()
				listener.Close()
			}()

			srv := &triage.Server{
				Log:           log,
				Pipeline:      pipeline,
				WebhookSecret: root.webhookSecret,
			}
			srv.Init()

			return http.Serve(listener, srv)
		},
		Options: []serpent.Option{
			{
				Flag:        "app-pem-file",
				Default:     "./app.pem",
				Description: "Path to the GitHub App PEM file.",
				Value:       serpent.StringOf(&root.appPEMFile),
			},
			{
				Flag:        "app-id",
				Description: "GitHub App ID.",
				Required:    true,
				Value:       serpent.StringOf(&root.appID),
			},
			{
				Flag:        "bind-addr",
				Description: "Address to bind to.",
				Default:     "localhost:8080",
				Value:       serpent.StringOf(&root.bindAddr),
			},
			{
				Flag:        "label-model",
				Default:     openai.GPT4TurboPreview,
				Description: "OpenAI model used for label generation.",
				Value:       serpent.StringOf(&root.labelModel),
			},
			{
				Flag:        "summary-model",
				Default:     openai.GPT3Dot5Turbo,
				Description: "OpenAI model used for issue summaries.",
				Value:       serpent.StringOf(&root.summaryModel),
			},
			{
				Flag:        "qdrant-url",
				Default:     "localhost:6334",
				Description: "Qdrant gRPC address.",
				Value:       serpent.StringOf(&root.qdrantURL),
			},
			{
				Flag:        "collection",
				Default:     "issues",
				Description: "Qdrant collection holding the issue corpus.",
				Value:       serpent.StringOf(&root.collection),
			},
			{
				Flag:        "similarity-threshold",
				Default:     "0.92",
				Description: "Similarity at or above which labels are reused from a prior issue.",
				Value:       serpent.StringOf(&root.threshold),
			},
			{
				Flag:        "search-k",
				Default:     "3",
				Description: "Number of similar issues to surface per triage.",
				Value:       serpent.Int64Of(&root.searchK),
			},
			{
				Flag:        "bigquery-project",
				Description: "GCP project for the audit sink. Empty disables auditing.",
				Value:       serpent.StringOf(&root.bqProject),
			},
			{
				Flag:        "bigquery-dataset",
				Default:     "triage",
				Description: "BigQuery dataset for the audit sink.",
				Value:       serpent.StringOf(&root.bqDataset),
			},
			{
				Flag:        "bigquery-table",
				Default:     "events",
				Description: "BigQuery table for the audit sink.",
				Value:       serpent.StringOf(&root.bqTable),
			},
			// SECRETS: only configurable via environment variables.
			{
				Description: "OpenAI API key.",
				Env:         "OPENAI_API_KEY",
				Required:    true,
				Value:       serpent.StringOf(&root.openAIKey),
			},
			{
				Env:         "GITHUB_APP_PEM",
				Description: "APP PEM in raw form.",
				Value:       serpent.StringOf(&root.appPEMEnv),
			},
			{
				Env:         "GITHUB_WEBHOOK_SECRET",
				Description: "Shared secret validating webhook deliveries.",
				Value:       serpent.StringOf(&root.webhookSecret),
			},
			{
				Env:         "QDRANT_API_KEY",
				Description: "Qdrant API key.",
				Value:       serpent.StringOf(&root.qdrantAPIKey),
			},
			{
				Env:         "SLACK_WEBHOOK_URL",
				Description: "Slack incoming webhook for triage notifications.",
				Value:       serpent.StringOf(&root.slackWebhook),
			},
		},
	}

	err := cmd.Invoke().WithOS().Run()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}
