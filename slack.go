package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// SlackNotifier delivers the triage result to a Slack incoming webhook.
// Delivery is fire-and-forget: failures are logged by the caller, never
// retried.
type SlackNotifier struct {
	Log        *slog.Logger
	WebhookURL string
	Client     *http.Client
}

func (n *SlackNotifier) Notify(ctx context.Context, issue *Issue, labels []string, similar []Match, summary string) error {
	if n.WebhookURL == "" {
		n.Log.Debug("slack webhook not configured, skipping notification", "issue", issue.ID)
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"text": composeSlackMessage(issue, labels, similar, summary),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %s", resp.Status)
	}

	n.Log.Info("sent slack notification", "issue", issue.ID)
	return nil
}

func composeSlackMessage(issue *Issue, labels []string, similar []Match, summary string) string {
	var sb strings.Builder

	sb.WriteString(":triangular_flag_on_post: *New GitHub Issue Received*\n\n")
	fmt.Fprintf(&sb, "*🔗 Title:* [%s](%s)\n\n", issue.Title, issue.URL)

	if len(labels) > 0 {
		sb.WriteString("*🏷️ Labels:* ")
		for i, label := range labels {
			fmt.Fprintf(&sb, "`%s`", label)
			if i < len(labels)-1 {
				sb.WriteString(" · ")
			}
		}
		sb.WriteString("\n\n")
	}

	if summary != "" {
		sb.WriteString("*🧠 AI Summary:*\n")
		for _, line := range strings.Split(strings.TrimSpace(summary), "\n") {
			sb.WriteString("> ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(similar) > 0 {
		sb.WriteString("*🧩 Similar Issues:*\n")
		for i, m := range similar {
			if i == 3 {
				break
			}
			fmt.Fprintf(&sb, "• [#%s](%s) – \"%s\" (%d%%)\n", m.Issue.ID, m.Issue.URL, m.Issue.Title, m.Score)
		}
	}

	return sb.String()
}
