// Package discord formats issue activity as Discord embeds and posts them to a webhook.
package discord

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alan/issue-relay/internal/github"
)

const (
	// MaxTitleLength is Discord's limit for embed titles
	MaxTitleLength = 256
	// MaxDescriptionLength keeps descriptions well under Discord's 4096 limit
	MaxDescriptionLength = 3500

	// IssueColor is the accent for new-issue embeds
	IssueColor = 0x5865F2
	// CommentColor is the accent for new-comment embeds
	CommentColor = 0x57F287

	truncationMarker = "…"
)

// Message is the webhook payload
type Message struct {
	Embeds []Embed `json:"embeds"`
}

// Embed is a single rich message block
type Embed struct {
	Title       string  `json:"title,omitempty"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Author      *Author `json:"author,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

// Author attributes an embed to a GitHub user
type Author struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

// Footer identifies the source repository
type Footer struct {
	Text string `json:"text"`
}

// Truncate trims s and clips it to max characters, the last of which is the
// truncation marker when clipping happens.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + truncationMarker
}

// IssueMessage builds the announcement for a newly opened issue
func IssueMessage(repository string, issue *github.Issue) Message {
	return Message{Embeds: []Embed{{
		Title:       Truncate(fmt.Sprintf("Issue #%d: %s", issue.Number, issue.Title), MaxTitleLength),
		URL:         issue.URL,
		Description: Truncate(issue.Body, MaxDescriptionLength),
		Color:       IssueColor,
		Timestamp:   formatTimestamp(issue.CreatedAt),
		Author:      newAuthor(issue.Author, issue.AuthorURL, issue.AvatarURL),
		Footer:      &Footer{Text: repository},
	}}}
}

// CommentMessage builds the announcement for a new comment on an issue
func CommentMessage(repository string, issueNumber int, comment *github.Comment) Message {
	url := comment.URL
	if url == "" {
		url = fmt.Sprintf("https://github.com/%s/issues/%d#issuecomment-%d", repository, issueNumber, comment.ID)
	}

	return Message{Embeds: []Embed{{
		Title:       fmt.Sprintf("New comment on #%d", issueNumber),
		URL:         url,
		Description: Truncate(comment.Body, MaxDescriptionLength),
		Color:       CommentColor,
		Timestamp:   formatTimestamp(comment.CreatedAt),
		Author:      newAuthor(comment.Author, comment.AuthorURL, comment.AvatarURL),
		Footer:      &Footer{Text: repository},
	}}}
}

func newAuthor(name, url, icon string) *Author {
	if name == "" {
		return nil
	}
	if url == "" {
		url = "https://github.com/" + name
	}
	return &Author{Name: name, URL: url, IconURL: icon}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
