package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/client"
	"github.com/ocuroot/gitdrop/client/tui"
	"github.com/ocuroot/gitdrop/history"
	"github.com/ocuroot/gitdrop/source"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

var (
	commitRepo          string
	commitMessage       string
	commitDest          string
	commitBranch        string
	commitExclude       []string
	commitMaxSize       int64
	commitStripTopLevel bool
	commitLogMode       bool
)

var CommitCmd = &cobra.Command{
	Use:   "commit <dir | file.zip | file | s3://bucket/prefix>",
	Short: "Commit files to a remote repository",
	Long: `Commit the contents of a directory, ZIP archive, single file or S3 prefix
to a remote repository.

Uploads of up to 500 files produce a single commit. Larger uploads are
committed in batches of 100 files, each with "(batch i/N)" appended to the
message. An empty repository is initialized first.

The repository defaults to the origin remote of the current directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		repoURL, err := resolveRepoURL(commitRepo)
		if err != nil {
			return fmt.Errorf("no --repo given and none detected: %w", err)
		}

		ctx, cancel := commandContext(settings)
		defer cancel()

		ctx, span := tracer.Start(ctx, "commit")
		defer span.End()
		span.SetAttributes(
			attribute.String("gitdrop.source", args[0]),
			attribute.String("gitdrop.repository", repoURL),
		)

		if commitMaxSize == 0 {
			commitMaxSize = settings.MaxFileSize
		}
		opts := source.Options{
			Exclude:       append(append([]string{}, settings.Exclude...), commitExclude...),
			MaxFileSize:   commitMaxSize,
			StripTopLevel: commitStripTopLevel,
		}
		if strings.HasPrefix(args[0], "s3://") {
			opts.S3 = source.NewS3Client(settings.S3Config())
		}

		files, err := source.Collect(ctx, args[0], opts)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		log.Info("Collected files", "source", args[0], "count", len(files))
		logger.InfoContext(ctx, "collected files", "source", args[0], "count", len(files))

		started := time.Now()
		t := tui.StartUploadTui(fmt.Sprintf("Committing %d files to %s", len(files), repoURL), commitLogMode)
		result, err := newCommitter(settings).Commit(ctx, upload.Params{
			RepoURL:         repoURL,
			Token:           settings.Token,
			Message:         commitMessage,
			Files:           files,
			DestinationPath: commitDest,
			Branch:          commitBranch,
			OnProgress:      t.Update,
		})
		if tuiErr := t.Finish(result, err); tuiErr != nil {
			log.Error("Failed to release terminal", "error", tuiErr)
		}
		recordUpload(ctx, settings, history.Entry{
			Repository: repoURL,
			Branch:     commitBranch,
			Message:    commitMessage,
			Source:     args[0],
			Files:      len(files),
			StartedAt:  started,
		}, result, err)
		return err
	},
}

// recordUpload adds the outcome of an upload to the history. Failures to
// record are logged and otherwise ignored.
func recordUpload(ctx context.Context, settings client.Settings, entry history.Entry, result *upload.Result, uploadErr error) {
	repo, err := upload.ParseRepoURL(entry.Repository)
	if err != nil {
		return
	}
	entry.Repository = repo.Owner + "/" + repo.Name
	entry.FinishedAt = time.Now()

	if result != nil {
		entry.ID = result.UploadID
		entry.Success = result.Success
		entry.Branch = result.Branch
		entry.CommitURL = result.CommitURL
		for _, c := range result.Commits {
			entry.Commits = append(entry.Commits, string(c.SHA))
		}
	} else {
		entry.ID = upload.NewUploadID()
	}
	if uploadErr != nil {
		entry.Error = uploadErr.Error()
	}

	// Record even when the upload was cancelled
	ctx = context.WithoutCancel(ctx)
	store := settings.HistoryStore()
	if err := store.Record(ctx, entry); err != nil {
		log.Error("Failed to record upload history", "error", err)
		return
	}
	if settings.HistoryKeep > 0 {
		if _, err := store.Prune(ctx, entry.Repository, settings.HistoryKeep); err != nil {
			log.Error("Failed to prune upload history", "error", err)
		}
	}
}

func init() {
	RootCmd.AddCommand(CommitCmd)

	CommitCmd.Flags().StringVarP(&commitRepo, "repo", "r", "", "Target repository, as owner/name or a URL")
	CommitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message")
	CommitCmd.Flags().StringVarP(&commitDest, "dest", "d", "", "Folder in the repository to commit into")
	CommitCmd.Flags().StringVarP(&commitBranch, "branch", "b", "", "Branch to commit to, created from the default branch if missing")
	CommitCmd.Flags().StringSliceVarP(&commitExclude, "exclude", "x", nil, "Glob patterns of files to leave out")
	CommitCmd.Flags().Int64Var(&commitMaxSize, "max-size", 0, "Reject files larger than this many bytes")
	CommitCmd.Flags().BoolVar(&commitStripTopLevel, "strip-top-level", false, "Drop the single top level folder of a ZIP archive")
	CommitCmd.Flags().BoolVarP(&commitLogMode, "logmode", "l", false, "Enable log mode when initializing the TUI")
	addRemoteFlags(CommitCmd)

	_ = CommitCmd.MarkFlagRequired("message")
}
