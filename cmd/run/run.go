// Package run implements the run command, a single relay pass.
package run

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alan/issue-relay/internal/commands"
	"github.com/alan/issue-relay/internal/config"
	"github.com/alan/issue-relay/internal/relay"
	"github.com/spf13/cobra"
)

// RunCommand encapsulates the run command with common functionality
type RunCommand struct {
	commands.BaseCommand
}

// NewRunCmd creates and returns the run command
func NewRunCmd(globalConfigFile *string, loadSettings func(string) (*config.Settings, error)) *cobra.Command {
	runCmd := &RunCommand{}

	command := &cobra.Command{
		Use:   "run",
		Short: "Announce new issue activity to the Discord webhook",
		Long: `Fetch the configured GitHub issue and its comments, announce anything
not yet recorded in the checkpoint to the Discord webhook, and advance the
checkpoint after every announcement.

Requires GITHUB_REPO, GITHUB_ISSUE and DISCORD_WEBHOOK_URL. When any of them
is unset the command exits successfully without doing anything.`,
		SilenceUsage: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			runCmd.ConfigFile = globalConfigFile
			runCmd.LoadSettings = loadSettings
			if err := runCmd.Init(cobraCmd.Context()); err != nil {
				if errors.Is(err, config.ErrConfigMissing) {
					slog.Debug("Relay disabled", "reason", err)
					return nil
				}
				return err
			}
			if err := runCmd.InitClients(); err != nil {
				return err
			}

			return runCmd.Run()
		},
	}

	return command
}

// Run executes one relay pass
func (rc *RunCommand) Run() error {
	return execute(rc.Context, rc.Settings, relay.NewReconciler(rc.GitHubClient, rc.Webhook, rc.Store, relay.Options{
		Repository:    rc.Settings.Repository(),
		IssueNumber:   rc.Settings.IssueNumber,
		AnnounceDelay: rc.Settings.AnnounceDelay,
		SeenLimit:     rc.Settings.SeenLimit,
	}))
}

func execute(ctx context.Context, settings *config.Settings, reconciler *relay.Reconciler) error {
	slog.Info("Starting relay", "repo", settings.Repository(), "issue", settings.IssueNumber, "state", settings.StatePath)

	result, err := reconciler.Run(ctx)
	if err != nil {
		if errors.Is(err, relay.ErrPartialPersist) {
			slog.Warn("Checkpoint write failed after a successful announcement; the next run may repeat it", "error", err)
		}
		return err
	}

	slog.Info("Relay finished",
		"issue_announced", result.IssueAnnounced,
		"issue_not_modified", result.IssueNotModified,
		"comments_announced", result.CommentsAnnounced,
		"last_comment_id", result.Checkpoint.LastCommentID)
	commands.DisplayRunSummary(settings.Repository(), settings.IssueNumber, result)

	return nil
}
