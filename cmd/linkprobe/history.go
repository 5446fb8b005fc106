package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/linkprobe/internal/config"
	"github.com/nao1215/linkprobe/internal/database"
	"github.com/nao1215/linkprobe/internal/model"
	"github.com/nao1215/linkprobe/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [site]",
		Short: "Compare stored runs of a site",
		Long: `History reads the runs stored by check and warm and shows what changed.

By default the latest two runs of the site are compared:
- links broken now but not before
- links that were fixed
- links still broken
- pages whose content changed

A site is given as its host ("example.com") or any URL on it.`,
		Example: `  # What changed since the previous run
  linkprobe history example.com

  # List the stored runs
  linkprobe history --list example.com

  # Compare the latest run with a specific one
  linkprobe history --with-id <run-id> example.com

  # Links broken in at least 3 runs
  linkprobe history --chronic 3 example.com

  # List every site in the database
  linkprobe history --list-sites`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List stored runs of the site")
	cmd.Flags().BoolP("list-sites", "L", false, "List every site in the database")
	cmd.Flags().StringP("with-id", "i", "", "Compare the latest run with this run ID")
	cmd.Flags().StringP("since", "s", "", "Compare the latest run with the first run on or after this date (YYYY-MM-DD)")
	cmd.Flags().Int("chronic", 0, "List links broken in at least N runs")

	cmd.Flags().BoolP("json", "j", false, "Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output in Markdown format")

	cmd.Flags().String("db-dir", config.XDGDataDir(), "SQLite history database directory")
	cmd.Flags().String("db-dsn", "", "PostgreSQL DSN for the history database (overrides --db-dir)")
	cmd.Flags().String("env-file", ".env", "File with LINKPROBE_* overrides")

	return cmd
}

// historyOptions are the parsed flags of the history command.
type historyOptions struct {
	site      string
	list      bool
	listSites bool
	withID    string
	since     string
	chronic   int
	json      bool
	markdown  bool
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := parseHistoryFlags(cmd, args)
	if err != nil {
		return err
	}

	// Validate before opening the database so a usage error never creates
	// or locks anything.
	if !opts.listSites && opts.site == "" {
		return errors.New("site is required (use --list-sites to see stored sites)")
	}
	if opts.json && opts.markdown {
		return config.ErrConflictingReportFormats
	}

	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	dsn, err := cmd.Flags().GetString("db-dsn")
	if err != nil {
		return err
	}
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	lookup, err := config.LoadEnv(envFile)
	if err != nil {
		return err
	}
	envCfg := &config.Config{DBDSN: dsn}
	if err := envCfg.ApplyEnv(lookup, cmd.Flags().Changed); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(ctx, envCfg.DBDSN, dbDir, false)
	if err != nil {
		if errors.Is(err, database.ErrDatabaseNotFound) {
			return fmt.Errorf("no history yet: run 'linkprobe check' or 'linkprobe warm' first (%w)", err)
		}
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	switch {
	case opts.listSites:
		return listSites(ctx, db, out, opts)
	case opts.list:
		return listRuns(ctx, db, out, opts)
	case opts.chronic > 0:
		return listChronic(ctx, db, out, opts)
	default:
		return compareRuns(ctx, db, out, opts)
	}
}

func parseHistoryFlags(cmd *cobra.Command, args []string) (historyOptions, error) {
	var (
		opts historyOptions
		err  error
	)
	f := cmd.Flags()
	if len(args) > 0 {
		opts.site = database.SiteKey(args[0])
	}
	if opts.list, err = f.GetBool("list"); err != nil {
		return opts, err
	}
	if opts.listSites, err = f.GetBool("list-sites"); err != nil {
		return opts, err
	}
	if opts.withID, err = f.GetString("with-id"); err != nil {
		return opts, err
	}
	if opts.since, err = f.GetString("since"); err != nil {
		return opts, err
	}
	if opts.chronic, err = f.GetInt("chronic"); err != nil {
		return opts, err
	}
	if opts.json, err = f.GetBool("json"); err != nil {
		return opts, err
	}
	if opts.markdown, err = f.GetBool("markdown"); err != nil {
		return opts, err
	}
	return opts, nil
}

// compareRuns diffs the latest run of the site against an earlier one.
func compareRuns(ctx context.Context, db *database.CrawlDB, out io.Writer, opts historyOptions) error {
	current, previous, err := selectRuns(ctx, db, opts)
	if err != nil {
		return err
	}

	diff := model.CompareReports(previous, current)
	var w report.DiffWriter
	switch {
	case opts.json:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case opts.markdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err = w.WriteDiff(opts.site, diff)
	return err
}

// selectRuns returns the latest run and the run it is compared with.
func selectRuns(ctx context.Context, db *database.CrawlDB, opts historyOptions) (*model.CrawlReport, *model.CrawlReport, error) {
	current, err := db.GetLatestReport(ctx, opts.site)
	if err != nil {
		return nil, nil, err
	}
	if current == nil {
		return nil, nil, fmt.Errorf("no runs found for %s", opts.site)
	}

	switch {
	case opts.withID != "":
		previous, err := db.GetReportByID(ctx, opts.withID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get run %s: %w", opts.withID, err)
		}
		if previous == nil {
			return nil, nil, fmt.Errorf("run %s not found", opts.withID)
		}
		if site := database.SiteKey(previous.StartURL); site != opts.site {
			return nil, nil, fmt.Errorf("run %s belongs to %s, not %s", opts.withID, site, opts.site)
		}
		return current, previous, nil

	case opts.since != "":
		since, err := time.Parse(time.DateOnly, opts.since)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
		}
		runs, err := db.GetHistoryWithMetadata(ctx, opts.site)
		if err != nil {
			return nil, nil, err
		}
		// Newest first, so walk backwards for the oldest match.
		for i := len(runs) - 1; i >= 0; i-- {
			if runs[i].StartedAt.Before(since) {
				continue
			}
			if runs[i].ID == current.ID {
				return nil, nil, fmt.Errorf("only one run found since %s; at least 2 are required", opts.since)
			}
			previous, err := db.GetReportByID(ctx, runs[i].ID)
			if err != nil {
				return nil, nil, err
			}
			return current, previous, nil
		}
		return nil, nil, fmt.Errorf("no runs found since %s", opts.since)

	default:
		recent, err := db.GetRecentReports(ctx, opts.site, 2)
		if err != nil {
			return nil, nil, err
		}
		if len(recent) < 2 {
			return nil, nil, fmt.Errorf("at least 2 runs are required for comparison (found %d)", len(recent))
		}
		return recent[0], recent[1], nil
	}
}

func listSites(ctx context.Context, db *database.CrawlDB, out io.Writer, opts historyOptions) error {
	sites, err := db.ListCrawledSites(ctx)
	if err != nil {
		return err
	}
	if opts.json {
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).WriteValue(map[string]any{"sites": sites})
		return err
	}
	if len(sites) == 0 {
		fmt.Fprintln(out, "No sites found in the database.")
		fmt.Fprintln(out, "\nUse 'linkprobe check <url>' to crawl a site.")
		return nil
	}
	if opts.markdown {
		return markdown.NewMarkdown(out).
			H1("Crawled Sites").
			BulletList(sites...).
			Build()
	}
	fmt.Fprintf(out, "Crawled sites (%d):\n\n", len(sites))
	for _, s := range sites {
		fmt.Fprintf(out, "  • %s\n", s)
	}
	fmt.Fprintln(out, "\nUse 'linkprobe history --list <site>' to see the runs of a site.")
	return nil
}

// jsonRun is one row of the JSON run list.
type jsonRun struct {
	ID           string     `json:"id"`
	StartURL     string     `json:"start_url"`
	Mode         model.Mode `json:"mode"`
	StartedAt    time.Time  `json:"started_at"`
	DurationMS   int64      `json:"duration_ms"`
	LinksChecked int        `json:"links_checked"`
	Broken       int        `json:"broken"`
	Pages        int        `json:"pages"`
	Cancelled    bool       `json:"cancelled"`
}

func listRuns(ctx context.Context, db *database.CrawlDB, out io.Writer, opts historyOptions) error {
	runs, err := db.GetHistoryWithMetadata(ctx, opts.site)
	if err != nil {
		return err
	}

	if opts.json {
		rows := make([]jsonRun, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, jsonRun{
				ID:           r.ID,
				StartURL:     r.StartURL,
				Mode:         r.Mode,
				StartedAt:    r.StartedAt,
				DurationMS:   r.Duration().Milliseconds(),
				LinksChecked: r.LinksChecked,
				Broken:       r.BrokenCount,
				Pages:        r.PageCount,
				Cancelled:    r.Cancelled,
			})
		}
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).
			WriteValue(map[string]any{"site": opts.site, "runs": rows})
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs found for %s\n", opts.site)
		return nil
	}

	if opts.markdown {
		rows := make([][]string, 0, len(runs))
		for _, r := range runs {
			rows = append(rows, []string{
				r.ID,
				r.StartedAt.Local().Format(time.DateTime),
				string(r.Mode),
				strconv.Itoa(r.LinksChecked),
				strconv.Itoa(r.BrokenCount),
				runState(r),
			})
		}
		return markdown.NewMarkdown(out).
			H1(fmt.Sprintf("Run History: %s", opts.site)).
			Table(markdown.TableSet{
				Header: []string{"ID", "Started", "Mode", "Links", "Broken", "State"},
				Rows:   rows,
			}).
			Build()
	}

	fmt.Fprintf(out, "Run history for %s (%d runs):\n\n", opts.site, len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-5s  %8s  %6s  %s\n", "ID", "Started", "Mode", "Links", "Broken", "State")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 94))
	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-19s  %-5s  %8d  %6d  %s\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Mode,
			r.LinksChecked,
			r.BrokenCount,
			runState(r),
		)
	}
	fmt.Fprintln(out, "\nUse 'linkprobe history <site>' to compare the latest two runs.")
	fmt.Fprintln(out, "Use 'linkprobe history --with-id <id> <site>' to compare with a specific run.")
	return nil
}

func runState(r database.RunMetadata) string {
	if r.Cancelled {
		return "cancelled"
	}
	return "complete"
}

func listChronic(ctx context.Context, db *database.CrawlDB, out io.Writer, opts historyOptions) error {
	stats, err := db.GetChronicBrokenLinks(ctx, opts.site, opts.chronic)
	if err != nil {
		return err
	}

	if opts.json {
		type row struct {
			Target     string `json:"target"`
			Runs       int    `json:"runs"`
			StatusCode int    `json:"status_code"`
		}
		rows := make([]row, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, row{Target: s.Target, Runs: s.Runs, StatusCode: s.StatusCode})
		}
		_, err := report.NewJSONWriter(out, report.WithPrettyPrint()).
			WriteValue(map[string]any{"site": opts.site, "min_runs": opts.chronic, "links": rows})
		return err
	}

	if len(stats) == 0 {
		fmt.Fprintf(out, "No links broken in %d or more runs of %s.\n", opts.chronic, opts.site)
		return nil
	}

	if opts.markdown {
		rows := make([][]string, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, []string{s.Target, strconv.Itoa(s.Runs), statusOrTransport(s.StatusCode)})
		}
		return markdown.NewMarkdown(out).
			H1(fmt.Sprintf("Chronic Broken Links: %s", opts.site)).
			Table(markdown.TableSet{Header: []string{"Target", "Runs", "Status"}, Rows: rows}).
			Build()
	}

	fmt.Fprintf(out, "Links broken in %d or more runs of %s (%d):\n\n", opts.chronic, opts.site, len(stats))
	for _, s := range stats {
		fmt.Fprintf(out, "  %4d runs  %-9s  %s\n", s.Runs, statusOrTransport(s.StatusCode), s.Target)
	}
	return nil
}

func statusOrTransport(code int) string {
	if code == 0 {
		return "transport"
	}
	return strconv.Itoa(code)
}
