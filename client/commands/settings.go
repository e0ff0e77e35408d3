package commands

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/client"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/transport"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/spf13/cobra"
)

// Flags shared by every command that talks to the remote API.
var (
	apiURLFlag      string
	tokenFlag       string
	concurrencyFlag int
	timeoutFlag     time.Duration
)

func addRemoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&apiURLFlag, "api-url", "", "Base URL of the REST API (default from GITDROP_API_URL)")
	cmd.Flags().StringVar(&tokenFlag, "token", "", "Access token (default from GITDROP_TOKEN or GITHUB_TOKEN)")
	cmd.Flags().IntVar(&concurrencyFlag, "concurrency", 0, "Maximum number of blobs uploaded at once")
	cmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Abort after this long, e.g. 5m")
}

// loadSettings reads settings from the environment and .env files, then
// applies any flags set on cmd.
func loadSettings(cmd *cobra.Command) (client.Settings, error) {
	settings, err := client.LoadSettingsFromEnvironment()
	if err != nil {
		return settings, err
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		settings.APIURL = apiURLFlag
	}
	if flags.Changed("token") {
		settings.Token = tokenFlag
	}
	if flags.Changed("concurrency") && concurrencyFlag > 0 {
		settings.Concurrency = concurrencyFlag
	}
	if flags.Changed("timeout") {
		settings.Timeout = timeoutFlag
	}
	return settings, nil
}

// commandContext is cancelled on interrupt and after the configured timeout.
func commandContext(settings client.Settings) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if settings.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, settings.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newCommitter(settings client.Settings) *upload.Committer {
	return upload.New(
		upload.WithBaseURL(settings.APIURL),
		upload.WithConcurrency(settings.Concurrency),
	)
}

func newRemote(settings client.Settings, repoURL string) (*git.Remote, error) {
	repo, err := upload.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	if err := repo.CheckAPIHost(settings.APIURL); err != nil {
		return nil, err
	}
	tr, err := transport.New(settings.Token, transport.WithBaseURL(settings.APIURL))
	if err != nil {
		return nil, err
	}
	log.Debug("Remote repository", "repo", repo.String(), "api", tr.BaseURL())
	return git.NewRemote(tr, repo.Owner, repo.Name), nil
}

// resolveRepoURL falls back to the origin remote of the working directory.
func resolveRepoURL(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return client.DetectRepoURL(wd)
}
