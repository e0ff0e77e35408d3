package commands

import (
	"fmt"

	"github.com/ocuroot/gitdrop/about"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/spf13/cobra"
)

var AboutCmd = &cobra.Command{
	Use:   "about",
	Short: "Display information about gitdrop",
	Long:  `Provides information about gitdrop and its upload limits.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("gitdrop: batch commits over a hosted Git REST API")
		fmt.Println("Version: " + about.Version)
		fmt.Printf("Uploads of up to %d files are committed at once, larger uploads in batches of %d.\n",
			upload.DefaultSingleCommitLimit, upload.DefaultBatchSize)
	},
}

func init() {
	RootCmd.AddCommand(AboutCmd)
}
