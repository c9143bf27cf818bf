// Package cli implements the shortcut command line tool: a thin client for
// the analysis API plus operational commands for corpus ingestion.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/ShortCut-Intelligence/internal/config"
	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global flags shared by every subcommand.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	ServerAddr string
}

// NewRootCommand builds the shortcut command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "shortcut",
		Short:   "ShortCut-Intelligence CLI — prior-art retrieval and infringement-risk analysis",
		Long:    "shortcut talks to the ShortCut-Intelligence analysis service: run a\nprior-art analysis from the terminal, load patent corpora into the search\nindexes, and inspect past analyses.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./shortcut.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.ServerAddr, "server", "http://localhost:8080", "analysis API base URL")

	cmd.AddCommand(
		newAnalyzeCommand(opts),
		newIngestCommand(opts),
		newVersionCommand(),
	)
	return cmd
}

// loadConfig resolves configuration for commands that talk to the
// infrastructure directly.  API-client commands never need it.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	return config.LoadFromEnv()
}

func newLogger(opts *RootOptions) (logging.Logger, error) {
	return logging.NewLogger(logging.LogConfig{
		Level:  opts.LogLevel,
		Format: "console",
	})
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shortcut %s\ncommit: %s\nbuilt:  %s\n", Version, GitCommit, BuildDate)
		},
	}
}
