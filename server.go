package triage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	githook "github.com/go-playground/webhooks/v6/github"

	"github.com/issuekit/triage/httpjson"
)

// Server exposes the webhook endpoint that feeds the triage pipeline.
type Server struct {
	Log      *slog.Logger
	Pipeline *Pipeline
	// WebhookSecret validates inbound deliveries when set.
	WebhookSecret string

	router *chi.Mux
}

func (s *Server) Init() {
	s.router = chi.NewRouter()
	s.router.Mount("/webhook", httpjson.Handler(s.webhook))
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.Write(w, http.StatusOK, httpjson.M{"status": "ok"})
	})
}

func (s *Server) serverError(msg error) *httpjson.Response {
	s.Log.Error("server error", "error", msg)
	return &httpjson.Response{
		Status: http.StatusInternalServerError,
		Body:   httpjson.M{"error": msg.Error()},
	}
}

func (s *Server) webhook(w http.ResponseWriter, r *http.Request) *httpjson.Response {
	var opts []githook.Option
	if s.WebhookSecret != "" {
		opts = append(opts, githook.Options.Secret(s.WebhookSecret))
	}
	hook, err := githook.New(opts...)
	if err != nil {
		return s.serverError(err)
	}

	payloadAny, err := hook.Parse(r, githook.IssuesEvent)
	if err != nil {
		if errors.Is(err, githook.ErrEventNotFound) || errors.Is(err, githook.ErrEventNotSpecifiedToParse) {
			return &httpjson.Response{
				Status: http.StatusOK,
				Body:   httpjson.M{"msg": "ignoring event: not an issues event"},
			}
		}
		return s.serverError(err)
	}

	payload, ok := payloadAny.(githook.IssuesPayload)
	if !ok {
		return s.serverError(fmt.Errorf("expected issues payload: %T", payloadAny))
	}

	if payload.Action != "opened" && payload.Action != "reopened" {
		return &httpjson.Response{
			Status: http.StatusOK,
			Body:   httpjson.M{"message": "not an opened issue"},
		}
	}

	issue := issueFromPayload(&payload)

	s.Log.Info("received issue webhook",
		"issue", issue.ID,
		"repo", issue.FullRepo(),
		"title", issue.Title,
	)

	res := s.Pipeline.Process(r.Context(), issue)

	return &httpjson.Response{
		Status: http.StatusOK,
		Body: httpjson.M{
			"status":               "triaged",
			"cache_hit":            res.CacheHit,
			"labels_count":         strconv.Itoa(len(res.Labels)),
			"similar_issues_count": strconv.Itoa(len(res.Similar)),
		},
	}
}

func issueFromPayload(payload *githook.IssuesPayload) *Issue {
	labels := make([]string, 0, len(payload.Issue.Labels))
	for _, l := range payload.Issue.Labels {
		labels = append(labels, l.Name)
	}

	number := int(payload.Issue.Number)
	return &Issue{
		ID:            DeriveIssueID(number, payload.Issue.HTMLURL, payload.Issue.Title),
		Number:        number,
		Title:         payload.Issue.Title,
		Body:          payload.Issue.Body,
		Labels:        labels,
		URL:           payload.Issue.HTMLURL,
		RepositoryURL: payload.Repository.URL,
		Owner:         payload.Repository.Owner.Login,
		Repo:          payload.Repository.Name,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
