package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ocuroot/gitdrop/client"
	"github.com/ocuroot/gitdrop/history"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/spf13/cobra"
)

var (
	historyLimit int
	historyJSON  bool
	historyID    string
)

var HistoryCmd = &cobra.Command{
	Use:   "history [repo]",
	Short: "List recent uploads",
	Long: `List recent uploads made from this machine, newest first. Without a
repository, uploads to every repository are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := client.LoadSettingsFromEnvironment()
		if err != nil {
			return err
		}

		var repository string
		if len(args) > 0 {
			repo, err := upload.ParseRepoURL(args[0])
			if err != nil {
				return err
			}
			repository = repo.Owner + "/" + repo.Name
		}

		store := settings.HistoryStore()
		if historyID != "" {
			if repository == "" {
				return errors.New("--id needs a repository")
			}
			entry, err := store.Get(context.Background(), repository, historyID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entry)
		}

		entries, err := store.List(context.Background(), repository, historyLimit)
		if err != nil {
			return err
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Println("No uploads recorded")
			return nil
		}
		fmt.Println(historyTable(entries))
		return nil
	},
}

var (
	historyHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	historyCell   = lipgloss.NewStyle().Padding(0, 1)
	historyFailed = historyCell.Foreground(lipgloss.Color("1"))
)

func historyTable(entries []history.Entry) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("WHEN", "REPOSITORY", "BRANCH", "FILES", "COMMITS", "RESULT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeader
			}
			if col == 5 && !entries[row].Success {
				return historyFailed
			}
			return historyCell
		})

	for _, e := range entries {
		outcome := "ok"
		if !e.Success {
			outcome = "failed"
		}
		t.Row(
			e.StartedAt.Local().Format(time.DateTime),
			e.Repository,
			e.Branch,
			fmt.Sprint(e.Files),
			fmt.Sprint(len(e.Commits)),
			outcome,
		)
	}
	return t.String()
}

func init() {
	RootCmd.AddCommand(HistoryCmd)

	HistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of uploads to list, 0 for all")
	HistoryCmd.Flags().BoolVar(&historyJSON, "json", false, "Print entries as JSON")
	HistoryCmd.Flags().StringVar(&historyID, "id", "", "Show the single upload with this id")
}
