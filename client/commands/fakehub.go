package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/fakehub"
	"github.com/spf13/cobra"
)

var (
	fakehubAddr      string
	fakehubRepos     []string
	fakehubToken     string
	fakehubBlobDelay time.Duration
)

var FakehubCmd = &cobra.Command{
	Use:   "fakehub",
	Short: "Serve an in-memory Git REST API for local testing",
	Long: `Serve an in-memory Git REST API for local testing. Repositories given with
--repo start empty. Point gitdrop at it with --api-url or GITDROP_API_URL.

Repositories are given as owner/name, optionally followed by @branch to set
the default branch.`,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		hub := fakehub.New()
		hub.Token = fakehubToken
		hub.BlobDelay = fakehubBlobDelay

		for _, r := range fakehubRepos {
			owner, name, branch, err := parseFakehubRepo(r)
			if err != nil {
				return err
			}
			hub.CreateRepo(owner, name, branch)
			log.Info("Created repository", "owner", owner, "name", name, "branch", branch)
		}

		srv := &http.Server{
			Addr:              fakehubAddr,
			Handler:           hub,
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("Failed to shut down fakehub", "error", err)
			}
		}()

		fmt.Printf("fakehub listening on http://%s\n", fakehubAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func parseFakehubRepo(s string) (owner, name, branch string, err error) {
	s, branch, _ = strings.Cut(s, "@")
	owner, name, ok := strings.Cut(s, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", "", fmt.Errorf("invalid repository %q, expected owner/name[@branch]", s)
	}
	return owner, name, branch, nil
}

func init() {
	RootCmd.AddCommand(FakehubCmd)

	FakehubCmd.Flags().StringVar(&fakehubAddr, "addr", "127.0.0.1:8089", "Address to listen on")
	FakehubCmd.Flags().StringSliceVar(&fakehubRepos, "repo", nil, "Repository to create, as owner/name[@branch]. May be repeated.")
	FakehubCmd.Flags().StringVar(&fakehubToken, "token", "", "Only accept this bearer token")
	FakehubCmd.Flags().DurationVar(&fakehubBlobDelay, "blob-delay", 0, "Delay every blob creation, to observe concurrency")
}
