package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ocuroot/gitdrop/about"
	"github.com/ocuroot/gitdrop/client"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/spf13/cobra"
)

var MCPCommand = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP (Model Context Protocol) server",
	Long:  `Run an MCP (Model Context Protocol) server that lets a model commit files to remote repositories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		h := &mcpHandlers{settings: settings}

		// Create a new MCP server
		s := server.NewMCPServer(
			"gitdrop",
			about.Version,
			server.WithToolCapabilities(false),
		)

		commitTool := mcp.NewTool("commit_files",
			mcp.WithDescription("Commit a set of text files to a remote repository. Large sets are committed in batches."),
			mcp.WithString("repo",
				mcp.Required(),
				mcp.Description("Target repository, as owner/name or a URL"),
			),
			mcp.WithString("message",
				mcp.Required(),
				mcp.Description("Commit message"),
			),
			mcp.WithObject("files",
				mcp.Required(),
				mcp.Description("Map of repository relative path to file content"),
			),
			mcp.WithString("destination_path",
				mcp.Description("Folder in the repository to commit the files into"),
			),
			mcp.WithString("branch",
				mcp.Description("Branch to commit to. Defaults to the default branch."),
			),
		)
		s.AddTool(commitTool, h.commitFiles)

		statusTool := mcp.NewTool("repo_status",
			mcp.WithDescription("Get the default branch and tip of a remote repository"),
			mcp.WithString("repo",
				mcp.Required(),
				mcp.Description("Repository, as owner/name or a URL"),
			),
		)
		s.AddTool(statusTool, h.repoStatus)

		// Start the stdio server
		return server.ServeStdio(s)
	},
}

type mcpHandlers struct {
	settings client.Settings
}

func (h *mcpHandlers) commitFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	arguments := request.GetArguments()

	repo, ok := arguments["repo"].(string)
	if !ok {
		return nil, errors.New("repo must be a string")
	}
	message, ok := arguments["message"].(string)
	if !ok {
		return nil, errors.New("message must be a string")
	}
	files, err := filesArgument(arguments["files"])
	if err != nil {
		return nil, err
	}
	dest, _ := arguments["destination_path"].(string)
	branch, _ := arguments["branch"].(string)

	result, err := newCommitter(h.settings).Commit(ctx, upload.Params{
		RepoURL:         repo,
		Token:           h.settings.Token,
		Message:         message,
		Files:           files,
		DestinationPath: dest,
		Branch:          branch,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (h *mcpHandlers) repoStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo, ok := request.GetArguments()["repo"].(string)
	if !ok {
		return nil, errors.New("repo must be a string")
	}

	remote, err := newRemote(h.settings, repo)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	probe, err := upload.Probe(ctx, remote)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := json.Marshal(probe)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func filesArgument(v any) ([]upload.FileEntry, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("files must be an object of path to content")
	}

	files := make([]upload.FileEntry, 0, len(m))
	for p, c := range m {
		content, ok := c.(string)
		if !ok {
			return nil, fmt.Errorf("content of %s must be a string", p)
		}
		files = append(files, upload.FileEntry{Path: p, Content: []byte(content)})
	}
	slices.SortFunc(files, func(a, b upload.FileEntry) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

func init() {
	RootCmd.AddCommand(MCPCommand)
	addRemoteFlags(MCPCommand)
}
