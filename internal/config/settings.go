package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alan/issue-relay/cmd"
	"github.com/spf13/viper"
)

// ErrConfigMissing is returned when a required setting is absent. Callers
// treat it as "relay disabled" rather than a failure. LoadSettings still
// returns the optional settings it resolved, such as StatePath.
var ErrConfigMissing = errors.New("required configuration missing")

const (
	// DefaultStatePath matches the location used by earlier state files
	DefaultStatePath = ".state/state.json"
	// DefaultAnnounceDelay spaces out webhook posts to stay under Discord's rate limits
	DefaultAnnounceDelay = 2 * time.Second
)

// Settings holds everything a relay run needs, resolved once at startup
type Settings struct {
	Owner         string
	Repo          string
	IssueNumber   int
	WebhookURL    string
	Token         string
	StatePath     string
	APIURL        string
	AnnounceDelay time.Duration
	SeenLimit     int
}

// Repository returns the owner/name identifier
func (s *Settings) Repository() string {
	return s.Owner + "/" + s.Repo
}

// envBindings maps setting keys to the environment variables that supply them
var envBindings = map[string]string{
	"repo":           "GITHUB_REPO",
	"issue":          "GITHUB_ISSUE",
	"webhook_url":    "DISCORD_WEBHOOK_URL",
	"token":          "GITHUB_TOKEN",
	"state_path":     "STATE_PATH",
	"api_url":        "GITHUB_API_URL",
	"announce_delay": "RELAY_ANNOUNCE_DELAY",
	"seen_limit":     "RELAY_SEEN_LIMIT",
}

// LoadSettings reads settings from the environment and, when configFile is
// non-empty, from a YAML file. Environment values take precedence.
func LoadSettings(configFile string) (*Settings, error) {
	v := viper.New()
	v.SetDefault("state_path", DefaultStatePath)
	v.SetDefault("announce_delay", DefaultAnnounceDelay.String())
	v.SetDefault("seen_limit", cmd.DefaultSeenLimit)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return settingsFromViper(v)
}

func settingsFromViper(v *viper.Viper) (*Settings, error) {
	repo := strings.TrimSpace(v.GetString("repo"))
	issue := strings.TrimSpace(v.GetString("issue"))
	webhook := strings.TrimSpace(v.GetString("webhook_url"))

	var missing []string
	if repo == "" {
		missing = append(missing, envBindings["repo"])
	}
	if issue == "" {
		missing = append(missing, envBindings["issue"])
	}
	if webhook == "" {
		missing = append(missing, envBindings["webhook_url"])
	}
	statePath := strings.TrimSpace(v.GetString("state_path"))
	if statePath == "" {
		statePath = DefaultStatePath
	}

	if len(missing) > 0 {
		return &Settings{StatePath: statePath}, fmt.Errorf("%w: %s", ErrConfigMissing, strings.Join(missing, ", "))
	}

	owner, name, err := ParseRepository(repo)
	if err != nil {
		return nil, err
	}

	number, err := strconv.Atoi(issue)
	if err != nil || number <= 0 {
		return nil, fmt.Errorf("invalid issue number %q: must be a positive integer", issue)
	}

	delay, err := parseDelay(v.GetString("announce_delay"))
	if err != nil {
		return nil, err
	}

	seenLimit := v.GetInt("seen_limit")
	if seenLimit <= 0 {
		return nil, fmt.Errorf("invalid seen limit %d: must be positive", seenLimit)
	}

	return &Settings{
		Owner:         owner,
		Repo:          name,
		IssueNumber:   number,
		WebhookURL:    webhook,
		Token:         strings.TrimSpace(v.GetString("token")),
		StatePath:     statePath,
		APIURL:        strings.TrimSpace(v.GetString("api_url")),
		AnnounceDelay: delay,
		SeenLimit:     seenLimit,
	}, nil
}

// ParseRepository splits an owner/name identifier
func ParseRepository(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid repository %q: expected owner/name", repo)
	}
	return owner, name, nil
}

// parseDelay accepts Go durations ("2s") or a bare number of seconds
func parseDelay(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAnnounceDelay, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("invalid announce delay %q: must not be negative", raw)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid announce delay %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid announce delay %q: must not be negative", raw)
	}
	return d, nil
}
