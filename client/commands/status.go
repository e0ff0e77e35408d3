package commands

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/spf13/cobra"
)

var (
	statusWatch    bool
	statusInterval time.Duration
	statusBranch   string
)

var (
	statusLabel = lipgloss.NewStyle().Bold(true)
	statusEmpty = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

var StatusCmd = &cobra.Command{
	Use:   "status [repo]",
	Short: "Show the default branch and tip of a remote repository",
	Long: `Show the default branch and tip of a remote repository, and whether it is
empty. With --watch, keep printing the tip of a branch whenever it moves.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		var repoFlag string
		if len(args) > 0 {
			repoFlag = args[0]
		}
		repoURL, err := resolveRepoURL(repoFlag)
		if err != nil {
			return fmt.Errorf("no repository given and none detected: %w", err)
		}

		remote, err := newRemote(settings, repoURL)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(settings)
		defer cancel()

		probe, err := upload.Probe(ctx, remote)
		if err != nil {
			return err
		}

		fmt.Println(statusLabel.Render("Repository:    ") + probe.Repository.FullName)
		fmt.Println(statusLabel.Render("Default branch:") + " " + probe.Repository.DefaultBranch)
		if probe.Empty {
			fmt.Println(statusLabel.Render("Tip:           ") + statusEmpty.Render("(empty repository)"))
		} else {
			fmt.Println(statusLabel.Render("Tip:           ") + string(probe.DefaultTip))
		}

		if !statusWatch {
			return nil
		}

		branch := statusBranch
		if branch == "" {
			branch = probe.Repository.DefaultBranch
		}
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()

		err = git.PollBranch(ctx, remote, branch, func(hash git.CommitSHA) {
			if hash == "" {
				fmt.Printf("%s %s does not exist\n", time.Now().Format(time.TimeOnly), branch)
				return
			}
			fmt.Printf("%s %s is at %s\n", time.Now().Format(time.TimeOnly), branch, hash)
		}, ticker.C)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	RootCmd.AddCommand(StatusCmd)

	StatusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Keep watching the branch for new commits")
	StatusCmd.Flags().DurationVar(&statusInterval, "interval", 10*time.Second, "Polling interval for --watch")
	StatusCmd.Flags().StringVarP(&statusBranch, "branch", "b", "", "Branch to watch, defaults to the default branch")
	addRemoteFlags(StatusCmd)
}
