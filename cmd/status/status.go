// Package status implements the status command for displaying the relay checkpoint.
package status

import (
	"errors"
	"fmt"

	"github.com/alan/issue-relay/internal/commands"
	"github.com/alan/issue-relay/internal/config"
	"github.com/spf13/cobra"
)

// NewStatusCmd creates and returns the status command
func NewStatusCmd(globalConfigFile *string, loadSettings func(string) (*config.Settings, error)) *cobra.Command {
	var statePath string

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the relay checkpoint",
		Long: `Display what has already been announced for the configured issue:
whether the issue itself was announced, the highest announced comment ID,
and when comments were last fetched. Does not contact GitHub or Discord.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(*globalConfigFile, statePath, loadSettings)
		},
	}

	statusCmd.Flags().StringVar(&statePath, "state", "", "Checkpoint file path, overrides STATE_PATH")

	return statusCmd
}

func runStatus(configFile, statePath string, loadSettings func(string) (*config.Settings, error)) error {
	path, err := resolveStatePath(configFile, statePath, loadSettings)
	if err != nil {
		return err
	}

	checkpoint, err := config.NewStore(path).Load()
	if err != nil {
		return fmt.Errorf("failed to load checkpoint: %w", err)
	}

	commands.DisplayCheckpoint(path, checkpoint)
	return nil
}

// resolveStatePath prefers the flag, then configured settings, then the default
func resolveStatePath(configFile, statePath string, loadSettings func(string) (*config.Settings, error)) (string, error) {
	if statePath != "" {
		return statePath, nil
	}

	settings, err := loadSettings(configFile)
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			if settings != nil && settings.StatePath != "" {
				return settings.StatePath, nil
			}
			return config.DefaultStatePath, nil
		}
		return "", fmt.Errorf("failed to load settings: %w", err)
	}
	return settings.StatePath, nil
}
