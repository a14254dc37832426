package triage

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Issue is the unit of work flowing through the pipeline. It is built once
// from the webhook payload and not mutated by any stage.
type Issue struct {
	// ID is a stable identifier: the issue number when known, otherwise
	// derived. See DeriveIssueID.
	ID     string
	Number int
	Title  string
	Body   string
	Labels []string

	// URL is the human-facing issue URL.
	URL string
	// RepositoryURL is the API URL of the owning repository,
	// e.g. https://api.github.com/repos/owner/repo.
	RepositoryURL string
	Owner         string
	Repo          string
}

// FullRepo returns "owner/repo".
func (i *Issue) FullRepo() string {
	return i.Owner + "/" + i.Repo
}

// InputText is the canonical text embedded and matched for an issue.
func (i *Issue) InputText() string {
	return fmt.Sprintf("Title: %s\nBody: %s", i.Title, i.Body)
}

// DeriveIssueID returns a stable identifier for an issue. Retried webhook
// deliveries of the same issue must derive the same ID, otherwise the
// self-match filter in the semantic engine cannot recognize them.
func DeriveIssueID(number int, htmlURL, title string) string {
	if number > 0 {
		return strconv.Itoa(number)
	}
	if n, ok := numberFromURL(htmlURL); ok {
		return strconv.Itoa(n)
	}
	sum := sha1.Sum([]byte(title))
	return hex.EncodeToString(sum[:8])
}

func numberFromURL(htmlURL string) (int, bool) {
	_, rest, found := strings.Cut(htmlURL, "/issues/")
	if !found {
		return 0, false
	}
	end := len(rest)
	for i, r := range rest {
		if r < '0' || r > '9' {
			end = i
			break
		}
	}
	n, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitLabels parses a comma-delimited label string, trimming whitespace and
// dropping empty entries. It always returns a non-nil slice: "no labels" and
// "empty labels" are the same, valid outcome.
func splitLabels(s string) []string {
	labels := []string{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		labels = append(labels, part)
	}
	return labels
}
