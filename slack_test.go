package triage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlackNotifier_SkipsWhenUnconfigured(t *testing.T) {
	n := &SlackNotifier{Log: testLogger()}
	if err := n.Notify(context.Background(), testIssue(), nil, nil, ""); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestSlackNotifier_PostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("unmarshal payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &SlackNotifier{Log: testLogger(), WebhookURL: srv.URL}
	err := n.Notify(context.Background(), testIssue(), []string{"bug"}, nil, "a summary")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(got["text"], "App crashes on startup") {
		t.Errorf("message missing issue title: %q", got["text"])
	}
}

func TestSlackNotifier_ErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &SlackNotifier{Log: testLogger(), WebhookURL: srv.URL}
	if err := n.Notify(context.Background(), testIssue(), nil, nil, ""); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestComposeSlackMessage(t *testing.T) {
	issue := testIssue()
	similar := []Match{
		{Issue: Issue{ID: "1", Title: "one", URL: "u1"}, Score: 95},
		{Issue: Issue{ID: "2", Title: "two", URL: "u2"}, Score: 90},
		{Issue: Issue{ID: "3", Title: "three", URL: "u3"}, Score: 85},
		{Issue: Issue{ID: "4", Title: "four", URL: "u4"}, Score: 80},
	}

	msg := composeSlackMessage(issue, []string{"bug", "crash"}, similar, "line one\nline two")

	for _, want := range []string{
		issue.Title,
		issue.URL,
		"`bug` · `crash`",
		"> line one",
		"> line two",
		"(95%)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}

	if strings.Contains(msg, "four") {
		t.Error("message lists more than 3 similar issues")
	}
}

func TestComposeSlackMessage_OmitsEmptySections(t *testing.T) {
	msg := composeSlackMessage(testIssue(), nil, nil, "")

	if strings.Contains(msg, "Labels") {
		t.Error("labels section present with no labels")
	}
	if strings.Contains(msg, "Summary") {
		t.Error("summary section present with no summary")
	}
	if strings.Contains(msg, "Similar") {
		t.Error("similar section present with no matches")
	}
}
