package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/about"
	"github.com/ocuroot/gitdrop/client"
	"github.com/spf13/cobra"
)

var cleanup = func() {}

// RootCmd represents the base command for the client
var RootCmd = &cobra.Command{
	Use:   "gitdrop",
	Short: "Commit files to a hosted Git repository over its REST API",
	Long: `gitdrop commits a directory, ZIP archive or S3 prefix to a hosted Git
repository without a local clone. Large uploads are split into a chain of
batch commits.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogs(client.LogsDir(), os.Args[1:])

		log.Info("Starting gitdrop", "version", about.Version, "args", os.Args[1:], "home", client.HomeDir())
		cleanup = setupTelemetry()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		cleanup()
		closeLogs()
	},
}

var (
	logCloser io.WriteCloser
	logPath   string
)

func initLogs(logDir string, args []string) {
	err := os.MkdirAll(logDir, os.ModeDir|os.ModePerm)
	if err != nil {
		log.Error("Could not create log directory. Logs will be discarded.", "error", err)
		log.SetOutput(io.Discard)
		return
	}
	logPath = filepath.Join(
		logDir,
		fmt.Sprintf(
			"%v-%v.log",
			time.Now().UnixNano(),
			strings.NewReplacer("/", "_", ":", "_").Replace(strings.Join(args, "_")),
		),
	)
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Error("Could not create log file. Logs will be discarded", "error", err)
		log.SetOutput(io.Discard)
		return
	}

	logCloser = logFile
	log.SetOutput(logFile)
	log.SetReportCaller(true)
}

func closeLogs() {
	if logCloser == nil {
		return
	}
	logCloser.Close()
	logCloser = nil
	log.SetOutput(os.Stderr)
	fmt.Fprintf(os.Stderr, "Logs at: %v\n", logPath)
}

// GetRootCommand returns the root Cobra command for the client
func GetRootCommand() *cobra.Command {
	return RootCmd
}

// Execute runs the root command
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		// PersistentPostRun is skipped when a command fails
		cleanup()
		closeLogs()
	}
	return err
}
