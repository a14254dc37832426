// Package ghapi holds small helpers over the GitHub REST API that the
// go-github client doesn't cover.
package ghapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// InstallIDForRepo resolves the GitHub App installation that covers a
// repository. The client must authenticate as the App itself.
func InstallIDForRepo(
	ctx context.Context,
	client *http.Client,
	owner, repo string,
) (int64, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		"https://api.github.com/repos/"+owner+"/"+repo+"/installation",
		nil,
	)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("get installation: %s", resp.Status)
	}

	var data struct {
		ID int64 `json:"id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&data)
	if err != nil {
		return 0, err
	}

	return data.ID, nil
}
