// Package commands holds setup shared by the issue-relay commands.
package commands

import (
	"context"

	"github.com/alan/issue-relay/internal/config"
	"github.com/alan/issue-relay/internal/discord"
	"github.com/alan/issue-relay/internal/github"
)

// BaseCommand provides common fields and initialization for all commands
type BaseCommand struct {
	ConfigFile   *string
	LoadSettings func(string) (*config.Settings, error)
	Settings     *config.Settings
	Store        *config.Store
	GitHubClient *github.Client
	Webhook      *discord.Webhook
	Context      context.Context
}

// Init resolves settings and builds the checkpoint store. It returns an
// error wrapping config.ErrConfigMissing when the relay is not configured.
func (bc *BaseCommand) Init(ctx context.Context) error {
	configFile := ""
	if bc.ConfigFile != nil {
		configFile = *bc.ConfigFile
	}

	settings, err := bc.LoadSettings(configFile)
	if err != nil {
		return err
	}
	bc.Settings = settings
	bc.Store = config.NewStore(settings.StatePath)

	if ctx == nil {
		ctx = context.Background()
	}
	bc.Context = ctx

	return nil
}

// InitClients creates the GitHub and Discord clients from the loaded settings
func (bc *BaseCommand) InitClients() error {
	client := github.NewClient(bc.Context, bc.Settings.Token).
		WithRepository(bc.Settings.Owner, bc.Settings.Repo)

	if bc.Settings.APIURL != "" {
		var err error
		client, err = client.WithBaseURL(bc.Settings.APIURL)
		if err != nil {
			return err
		}
	}

	bc.GitHubClient = client
	bc.Webhook = discord.NewWebhook(bc.Settings.WebhookURL)
	return nil
}
