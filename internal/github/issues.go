package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alan/issue-relay/internal/retry"
	"github.com/google/go-github/v57/github"
)

// IssueResult is the outcome of a conditional issue fetch
type IssueResult struct {
	Issue       *Issue // nil when NotModified
	ETag        string
	NotModified bool
}

// GetIssue fetches an issue by number. When etag is non-empty the request is
// conditional and a 304 response is reported as NotModified.
func (c *Client) GetIssue(ctx context.Context, number int, etag string) (*IssueResult, error) {
	path := fmt.Sprintf("repos/%v/%v/issues/%d", c.org, c.repo, number)

	var result *IssueResult
	err := retry.Do(ctx, c.retry, "get issue", func() error {
		req, err := c.client.NewRequest(http.MethodGet, path, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to build issue request: %w", err))
		}
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		slog.Debug("GitHub API: Getting issue", "org", c.org, "repo", c.repo, "issue", number, "conditional", etag != "")
		var issue github.Issue
		resp, err := c.client.Do(ctx, req, &issue)
		if resp != nil && resp.StatusCode == http.StatusNotModified {
			result = &IssueResult{ETag: etag, NotModified: true}
			return nil
		}
		if err != nil {
			return retryable(resp, fmt.Errorf("failed to fetch issue #%d: %w", number, err))
		}

		author, authorURL, avatar := authorProfile(issue.GetUser())
		result = &IssueResult{
			Issue: &Issue{
				Number:    issue.GetNumber(),
				Title:     issue.GetTitle(),
				Body:      issue.GetBody(),
				Author:    author,
				AuthorURL: authorURL,
				AvatarURL: avatar,
				URL:       issue.GetHTMLURL(),
				CreatedAt: firstTime(issue.GetCreatedAt(), issue.GetUpdatedAt()),
			},
			ETag: resp.Header.Get("ETag"),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
