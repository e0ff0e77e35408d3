package commands

import (
	"fmt"
	"strings"

	"github.com/ocuroot/gitdrop/about"
	"github.com/spf13/cobra"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Displays the current gitdrop version",
	Long:  `Displays the current gitdrop version.`,
	Run: func(cmd *cobra.Command, args []string) {
		versionParts := strings.SplitN(about.Version, "-", 2)
		fmt.Println("gitdrop version: " + versionParts[0])
		if len(versionParts) > 1 {
			fmt.Println("Build: " + versionParts[1])
		}
	},
}

func init() {
	RootCmd.AddCommand(VersionCmd)
}
