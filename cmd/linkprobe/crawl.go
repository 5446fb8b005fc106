package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/linkprobe/internal/config"
	"github.com/nao1215/linkprobe/internal/crawler"
	"github.com/nao1215/linkprobe/internal/database"
	"github.com/nao1215/linkprobe/internal/extract"
	"github.com/nao1215/linkprobe/internal/model"
	"github.com/nao1215/linkprobe/internal/pipeline"
	"github.com/nao1215/linkprobe/internal/report"
	"github.com/nao1215/linkprobe/internal/transport"
)

// errBrokenLinks makes check exit non-zero when anything is broken.
var errBrokenLinks = errors.New("broken links found")

// addCrawlFlags registers the flags shared by check and warm.
func addCrawlFlags(cmd *cobra.Command) {
	f := cmd.Flags()

	// Crawl behavior
	f.IntP("concurrency", "c", config.DefaultConcurrency, "Maximum number of links fetched at once")
	f.Bool("no-jitter", false, "Disable the randomized delay before each request")
	f.Int("jitter-multiplier", config.DefaultJitterMultiplier, "Jitter bound in ms per unit of concurrency")
	f.DurationP("timeout", "t", config.DefaultTimeout, "Timeout for each request")
	f.IntP("max-pages", "p", config.DefaultMaxPages, "Maximum links processed per start URL (0 = unlimited)")
	f.Float64("rate", 0, "Maximum requests per second per host (0 = unlimited)")
	f.String("user-agent", config.DefaultUserAgent, "User-Agent header")
	f.Int64("max-body-size", config.DefaultMaxBodySize, "Maximum bytes read per page")
	f.String("broken-policy", config.DefaultBrokenPolicy, "Which statuses count as broken: default, not-found or strict")
	f.Bool("ignore-robots", false, "Do not honor robots.txt")
	f.IntP("batch", "b", config.DefaultBatchSize, "Number of start URLs crawled at once")

	// Extractor tuning
	f.Int("buffer-size", config.DefaultBufferSize, "Bytes read from a response per scan")
	f.Int("max-url-length", config.DefaultMaxURLLength, "Longest href kept; longer values are dropped")
	f.Int("slots", config.DefaultSlotCount, "Hrefs staged before conversion to strings")

	// Network
	f.String("proxy", "", "Route requests through a SOCKS5 proxy (host:port)")
	f.Bool("tor", false, "Start an embedded Tor daemon and crawl through it")
	f.Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")

	// Configuration
	f.String("config", "", "Site file path (default: .linkprobe in current or home directory)")
	f.String("env-file", ".env", "File with LINKPROBE_* overrides")

	// Output
	f.BoolP("json", "j", false, "Output a JSON report")
	f.BoolP("markdown", "m", false, "Output a Markdown report")
	f.Bool("xlsx", false, "Write an XLSX workbook (requires --output)")
	f.StringP("output", "o", "", "Write the report to a file (creates directories if needed)")
	f.Bool("no-progress", false, "Hide the progress spinner")

	// History
	f.Bool("no-db", false, "Do not store results in the history database")
	f.String("db-dir", config.XDGDataDir(), "SQLite history database directory")
	f.String("db-dsn", "", "PostgreSQL DSN for the history database (overrides --db-dir)")
}

// buildConfig creates a Config from the command's flags, the environment
// and the site file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	f := cmd.Flags()

	var err error
	getInt := func(name string, dst *int) {
		if err == nil {
			*dst, err = f.GetInt(name)
		}
	}
	getBool := func(name string, dst *bool) {
		if err == nil && f.Lookup(name) != nil {
			*dst, err = f.GetBool(name)
		}
	}
	getString := func(name string, dst *string) {
		if err == nil {
			*dst, err = f.GetString(name)
		}
	}
	getDuration := func(name string, dst *time.Duration) {
		if err == nil {
			*dst, err = f.GetDuration(name)
		}
	}

	getInt("concurrency", &cfg.Concurrency)
	getBool("no-jitter", &cfg.NoJitter)
	getInt("jitter-multiplier", &cfg.JitterMultiplier)
	getDuration("timeout", &cfg.Timeout)
	getInt("max-pages", &cfg.MaxPages)
	if err == nil {
		cfg.RateLimit, err = f.GetFloat64("rate")
	}
	getString("user-agent", &cfg.UserAgent)
	if err == nil {
		cfg.MaxBodySize, err = f.GetInt64("max-body-size")
	}
	getString("broken-policy", &cfg.BrokenPolicy)
	getBool("ignore-robots", &cfg.IgnoreRobots)
	getBool("check-external", &cfg.CheckExternal)
	getBool("details", &cfg.Details)
	getBool("assets", &cfg.Assets)
	getInt("batch", &cfg.BatchSize)
	getInt("buffer-size", &cfg.BufferSize)
	getInt("max-url-length", &cfg.MaxURLLength)
	getInt("slots", &cfg.SlotCount)
	getString("proxy", &cfg.ProxyAddress)
	getBool("tor", &cfg.UseTor)
	getDuration("tor-timeout", &cfg.TorStartupTimeout)
	getString("config", &cfg.ConfigFilePath)
	getBool("json", &cfg.JSONReport)
	getBool("markdown", &cfg.MarkdownReport)
	getBool("xlsx", &cfg.XLSXReport)
	getString("output", &cfg.ReportFile)
	getString("db-dir", &cfg.DBDir)
	getString("db-dsn", &cfg.DBDSN)
	var noDB bool
	getBool("no-db", &noDB)
	var envFile string
	getString("env-file", &envFile)
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Targets = args

	// Flags given explicitly win over LINKPROBE_* variables.
	lookup, err := config.LoadEnv(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup, f.Changed); err != nil {
		return nil, err
	}

	// An explicit site file must exist; the default locations are optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// runCrawlCmd returns the RunE of a crawl command for mode.
func runCrawlCmd(mode model.Mode) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd, args)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}

		logger, err := setupLogger(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// The first signal stops dispatching; in-flight requests finish and
		// the partial report is still written and saved.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case <-sigCh:
				logger.Warn("received shutdown signal, finishing in-flight requests")
				cancel()
			case <-ctx.Done():
			}
		}()

		noProgress, err := cmd.Flags().GetBool("no-progress")
		if err != nil {
			return err
		}
		exitZero := false
		if cmd.Flags().Lookup("exit-zero") != nil {
			if exitZero, err = cmd.Flags().GetBool("exit-zero"); err != nil {
				return err
			}
		}

		broken, err := runCrawl(ctx, cfg, mode, logger, crawlIO{
			out:      cmd.OutOrStdout(),
			errOut:   cmd.ErrOrStderr(),
			progress: !noProgress && !cfg.Verbose,
		})
		if err != nil {
			return err
		}
		if mode == model.ModeCheck && broken > 0 && !exitZero {
			return fmt.Errorf("%w: %d", errBrokenLinks, broken)
		}
		return nil
	}
}

// crawlIO bundles where a crawl writes.
type crawlIO struct {
	out      io.Writer
	errOut   io.Writer
	progress bool
}

// runCrawl crawls every target, writes the reports and stores them. It
// returns the total number of broken links.
func runCrawl(ctx context.Context, cfg *config.Config, mode model.Mode, logger *slog.Logger, cio crawlIO) (int, error) {
	logger.Info("starting crawl",
		"targets", cfg.Targets,
		"mode", mode,
		"concurrency", cfg.Concurrency,
		"batch", cfg.BatchSize,
		"jitter", cfg.JitterEnabled(),
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = openDatabase(ctx, cfg.DBDSN, cfg.DBDir, true)
		if err != nil {
			return 0, err
		}
		defer db.Close()
	}

	client, stop, err := newTransport(ctx, cfg, logger, cio.errOut)
	if err != nil {
		return 0, err
	}
	defer stop()

	ex, err := extract.New(
		extract.WithBufferSize(cfg.BufferSize),
		extract.WithMaxURLLength(cfg.MaxURLLength),
		extract.WithSlotCount(cfg.SlotCount),
	)
	if err != nil {
		return 0, fmt.Errorf("configuration error: %w", err)
	}
	policy, err := crawler.ParseBrokenPolicy(cfg.BrokenPolicy)
	if err != nil {
		return 0, fmt.Errorf("configuration error: %w", err)
	}

	prog := newProgress(cio.errOut, cio.progress)
	prog.Start()

	bp := pipeline.NewBatchProcessor(
		func(startURL string) *pipeline.Pipeline {
			return newPipeline(cfg, mode, client, ex, policy, prog, logger, startURL)
		},
		pipeline.WithMode(mode),
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	// Reports are saved as soon as each crawl ends, so a later interrupt
	// does not lose them. They are printed in target order afterwards.
	reports := make([]*model.CrawlReport, len(cfg.Targets))
	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(r *model.CrawlReport, index int) {
		reports[index] = r
		saveCrawlReport(ctx, db, r, logger)
	})
	prog.Stop()

	broken := 0
	done := 0
	for i, r := range reports {
		if r == nil {
			continue
		}
		done++
		broken += len(r.Broken)
		if err := writeReport(cfg, r, reportPath(cfg.ReportFile, i, len(reports)), cio.out); err != nil {
			return broken, fmt.Errorf("failed to write report for %s: %w", r.StartURL, err)
		}
	}

	if ctx.Err() != nil || errors.Is(batchErr, context.Canceled) {
		fmt.Fprintf(cio.errOut, "Interrupted: %d of %d start URLs reported (partial results).\n", done, len(reports))
	}
	return broken, nil
}

// newPipeline builds the pipeline for one start URL, applying its site
// settings on top of the crawl-wide configuration.
func newPipeline(
	cfg *config.Config,
	mode model.Mode,
	client *transport.Client,
	ex *extract.Extractor,
	policy crawler.BrokenPolicy,
	prog *progress,
	logger *slog.Logger,
	startURL string,
) *pipeline.Pipeline {
	site := siteConfigFor(cfg, startURL)
	maxPages := cfg.MaxPages
	if site.MaxPages > 0 {
		maxPages = site.MaxPages
	}
	rate := cfg.RateLimit
	if site.RateLimit > 0 {
		rate = site.RateLimit
	}
	httpClient := client.HTTPClientWithConfig(site.Cookie, site.Headers)

	procOpts := []crawler.ProcessorOption{
		crawler.WithBrokenPolicy(policy),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithJitter(crawler.NewJitter(cfg.JitterEnabled(), cfg.JitterMultiplier, cfg.Concurrency)),
		crawler.WithRateLimit(rate, max(1, cfg.Concurrency)),
		crawler.WithRobots(!cfg.IgnoreRobots),
		crawler.WithPatterns(site.IgnorePatterns, site.FollowPatterns),
		crawler.WithCheckExternal(cfg.CheckExternal),
		crawler.WithAssets(cfg.Assets),
	}
	if len(site.ExcludedExtensions) > 0 {
		procOpts = append(procOpts, crawler.WithExcludedExtensions(site.ExcludedExtensions))
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)
	p.AddStep(pipeline.NewCrawlStep(httpClient, ex,
		pipeline.WithDriverOptions(
			crawler.WithConcurrency(cfg.Concurrency),
			crawler.WithMaxLinks(maxPages),
		),
		pipeline.WithProcessorOptions(procOpts...),
		pipeline.WithProgress(prog.Observe),
		pipeline.WithStepLogger(logger),
	))
	if cfg.Details && mode == model.ModeCheck {
		p.AddStep(pipeline.NewDescribeStep(crawler.NewLocator(httpClient, cfg.UserAgent, logger)))
	}
	return p
}

// siteConfigFor returns the site settings for the host of startURL.
func siteConfigFor(cfg *config.Config, startURL string) config.SiteConfig {
	if cfg.SiteConfigs == nil {
		return config.SiteConfig{}
	}
	u, err := url.Parse(startURL)
	if err != nil {
		return cfg.SiteConfigs.Defaults
	}
	return cfg.SiteConfigs.GetSiteConfig(u.Host)
}

// newTransport returns the HTTP client factory for the crawl and a function
// releasing it. With --tor an embedded daemon is started first.
func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger, errOut io.Writer) (*transport.Client, func(), error) {
	opts := []transport.ClientOption{transport.WithMaxConnsPerHost(cfg.Concurrency)}

	if cfg.UseTor {
		fmt.Fprintln(errOut, "Starting embedded Tor daemon (this may take 1-3 minutes)...")
		et := transport.NewEmbeddedTor(transport.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := et.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		stop := func() {
			if err := et.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}
		logger.Info("embedded Tor daemon started", "socksAddr", et.SocksAddr())

		client, err := et.NewClient(cfg.Timeout, opts...)
		if err != nil {
			stop()
			return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		if status := client.CheckProxy(ctx); status != transport.ProxyStatusOK {
			stop()
			return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %w", status.Err())
		}
		return client, stop, nil
	}

	if cfg.ProxyAddress != "" {
		opts = append(opts, transport.WithProxy(cfg.ProxyAddress))
	}
	client, err := transport.NewClient(cfg.Timeout, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	if cfg.ProxyAddress != "" {
		if status := client.CheckProxy(ctx); status != transport.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed for %s: %w", cfg.ProxyAddress, status.Err())
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
	}
	return client, func() {}, nil
}

// openDatabase opens PostgreSQL when dsn is set and SQLite in dir otherwise.
func openDatabase(ctx context.Context, dsn, dir string, create bool) (*database.CrawlDB, error) {
	if dsn != "" {
		return database.OpenPostgres(ctx, dsn)
	}
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = create
	return database.Open(dir, opts)
}

// saveCrawlReport stores r when a database is open. Failures are logged:
// a report that could not be saved is still printed.
func saveCrawlReport(ctx context.Context, db *database.CrawlDB, r *model.CrawlReport, logger *slog.Logger) {
	if db == nil {
		return
	}
	if err := db.SaveCrawlReport(context.WithoutCancel(ctx), r); err != nil {
		logger.Error("failed to save crawl report", "url", r.StartURL, "error", err)
		return
	}
	logger.Info("crawl report saved", "url", r.StartURL, "id", r.ID)
}

// reportPath returns where report index of total goes. With several start
// URLs and one --output, files are numbered: out.json, out-2.json, ...
func reportPath(file string, index, total int) string {
	if file == "" || total <= 1 || index == 0 {
		return file
	}
	ext := filepath.Ext(file)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(file, ext), index+1, ext)
}

// writeReport renders r in the configured format to path, or to stdout
// when path is empty.
func writeReport(cfg *config.Config, r *model.CrawlReport, path string, stdout io.Writer) (err error) {
	output := stdout
	if path != "" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		// Reports can carry URLs with session parameters.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); err == nil && cerr != nil {
				err = cerr
			}
		}()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	case cfg.XLSXReport:
		w = report.NewXLSXWriter(output)
	default:
		w = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
	_, err = w.Write(r)
	return err
}
