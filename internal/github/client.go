// Package github wraps the GitHub REST API for reading one issue and its comments.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alan/issue-relay/internal/retry"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// CommentsPageSize is the page size requested when listing comments
const CommentsPageSize = 100

// Client wraps the GitHub API client
type Client struct {
	client   *github.Client
	org      string
	repo     string
	pageSize int
	retry    retry.Policy
}

// NewClient creates a new GitHub client. An empty token yields an
// unauthenticated client with the lower public rate limit.
func NewClient(ctx context.Context, token string) *Client {
	var tc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(ctx, ts)
	}

	return &Client{
		client:   github.NewClient(tc),
		pageSize: CommentsPageSize,
		retry:    retry.DefaultPolicy,
	}
}

// WithRepository sets the repository the client operates on
func (c *Client) WithRepository(org, repo string) *Client {
	c.org = org
	c.repo = repo
	return c
}

// WithBaseURL points the client at a different API root, e.g. GitHub Enterprise
func (c *Client) WithBaseURL(raw string) (*Client, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API URL %q: %w", raw, err)
	}
	c.client.BaseURL = u
	return c, nil
}

// WithRetryPolicy overrides the backoff used for rate-limited and failed requests
func (c *Client) WithRetryPolicy(p retry.Policy) *Client {
	c.retry = p
	return c
}

// retryable classifies an API error: rate limits and server errors are
// retried, everything else fails the call immediately.
func retryable(resp *github.Response, err error) error {
	var rateLimit *github.RateLimitError
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &rateLimit) || errors.As(err, &abuse) {
		return err
	}
	if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError) {
		return err
	}
	return retry.Permanent(err)
}
