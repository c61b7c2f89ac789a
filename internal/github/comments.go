package github

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alan/issue-relay/internal/retry"
	"github.com/google/go-github/v57/github"
)

// ListIssueComments retrieves every comment on an issue, optionally limited to
// comments updated at or after since, sorted ascending by ID. Paging stops at
// the first page shorter than the page size.
func (c *Client) ListIssueComments(ctx context.Context, issueNumber int, since time.Time) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{
			PerPage: c.pageSize,
			Page:    1,
		},
	}
	if !since.IsZero() {
		opts.Since = &since
	}

	var allComments []Comment
	for {
		var comments []*github.IssueComment
		err := retry.Do(ctx, c.retry, "list comments", func() error {
			slog.Debug("GitHub API: Listing issue comments", "org", c.org, "repo", c.repo, "issue", issueNumber, "page", opts.Page)
			var resp *github.Response
			var err error
			comments, resp, err = c.client.Issues.ListComments(ctx, c.org, c.repo, issueNumber, opts)
			if err != nil {
				return retryable(resp, fmt.Errorf("failed to list issue comments: %w", err))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, comment := range comments {
			author, authorURL, avatar := authorProfile(comment.GetUser())
			allComments = append(allComments, Comment{
				ID:        comment.GetID(),
				Body:      comment.GetBody(),
				Author:    author,
				AuthorURL: authorURL,
				AvatarURL: avatar,
				URL:       comment.GetHTMLURL(),
				CreatedAt: firstTime(comment.GetCreatedAt(), comment.GetUpdatedAt()),
			})
		}

		if len(comments) < c.pageSize {
			break
		}
		opts.Page++
	}

	// The API does not guarantee ordering
	slices.SortStableFunc(allComments, func(a, b Comment) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return allComments, nil
}
