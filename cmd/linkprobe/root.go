package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/linkprobe/internal/log"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linkprobe",
		Short: "Fast broken-link checker and cache warmer",
		Long: `linkprobe crawls a web site breadth-first from one or more start URLs.

"check" reports every link whose target is broken; "warm" fetches every page
so CDNs and reverse proxies hold a fresh copy. Results are stored in a local
history database so runs can be compared over time.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", string(log.FormatText), "Log format: text, json or pretty")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewWarmCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// getVerboseFlag reads --verbose from the command or the root.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger builds the logger selected by --log-format and --verbose and
// installs it as the slog default. Logs go to stderr so that reports on
// stdout stay machine-readable.
func setupLogger(cmd *cobra.Command) (*slog.Logger, error) {
	name, err := cmd.Flags().GetString("log-format")
	if err != nil {
		name, err = cmd.Root().PersistentFlags().GetString("log-format")
		if err != nil {
			name = ""
		}
	}
	format, err := log.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	logger := log.New(cmd.ErrOrStderr(), format, getVerboseFlag(cmd))
	slog.SetDefault(logger)
	return logger, nil
}
