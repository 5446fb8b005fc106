package main

import (
	"github.com/spf13/cobra"

	"github.com/nao1215/linkprobe/internal/model"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <url> [url...]",
		Short: "Find broken links",
		Long: `Crawl each start URL breadth-first and report every link whose target
returns a broken status or cannot be fetched.

Only links on the start URL's host are followed. With --check-external,
links to other hosts are verified too (but not crawled).

The command exits with status 1 when broken links are found, which makes it
usable as a CI gate. Use --exit-zero to report without failing.`,
		Example: `  # Check a site
  linkprobe check https://example.com

  # Gentle crawl with a rate limit and a JSON report
  linkprobe check -c 2 --rate 5 --json -o report.json https://example.com

  # Include anchor text and line numbers for each broken link
  linkprobe check --details https://example.com

  # Check several sites, two at a time
  linkprobe check -b 2 https://example.com https://example.org`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCrawlCmd(model.ModeCheck),
	}

	addCrawlFlags(cmd)
	cmd.Flags().Bool("check-external", false, "Also verify links to other hosts")
	cmd.Flags().Bool("details", false, "Re-read referring pages for anchor text and line numbers")
	cmd.Flags().Bool("exit-zero", false, "Exit with status 0 even when broken links are found")

	return cmd
}
