package github

import (
	"time"

	"github.com/google/go-github/v57/github"
)

// Issue represents the fields of a GitHub issue needed for an announcement
type Issue struct {
	Number    int
	Title     string
	Body      string
	Author    string
	AuthorURL string
	AvatarURL string
	URL       string
	CreatedAt time.Time
}

// Comment represents an issue comment from GitHub
type Comment struct {
	ID        int64
	Body      string
	Author    string
	AuthorURL string
	AvatarURL string
	URL       string
	CreatedAt time.Time
}

// authorProfile returns the login, profile URL and avatar of a user
func authorProfile(user *github.User) (string, string, string) {
	login := user.GetLogin()
	if login == "" {
		return "", "", ""
	}
	profile := user.GetHTMLURL()
	if profile == "" {
		profile = "https://github.com/" + login
	}
	return login, profile, user.GetAvatarURL()
}

// firstTime returns created unless it is unset, then updated
func firstTime(created, updated github.Timestamp) time.Time {
	if !created.IsZero() {
		return created.Time
	}
	return updated.Time
}
