package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is used for XDG directory paths.
	AppName = "linkprobe"

	// DefaultConcurrency is the number of links fetched at once.
	DefaultConcurrency = 4

	// DefaultJitterMultiplier scales the concurrency into the jitter bound
	// in milliseconds, so four workers spread their requests over 400ms.
	DefaultJitterMultiplier = 100

	// DefaultTimeout applies to each request, headers and body included.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxPages stops runaway crawls of generated sites.
	DefaultMaxPages = 10000

	// DefaultBatchSize is how many start URLs are crawled at once.
	DefaultBatchSize = 2

	// DefaultMaxBodySize bounds how much of each page is read.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultBufferSize is the extractor read size.
	DefaultBufferSize = 32 * 1024

	// DefaultMaxURLLength is the longest href value the extractor keeps.
	DefaultMaxURLLength = 2048

	// DefaultSlotCount is the number of extractor staging slots.
	DefaultSlotCount = 64

	// DefaultUserAgent identifies linkprobe in requests and robots.txt.
	DefaultUserAgent = "linkprobe/1.0 (+https://github.com/nao1215/linkprobe)"

	// DefaultBrokenPolicy flags every 4xx and 5xx status except 403.
	DefaultBrokenPolicy = "default"

	// DefaultTorStartupTimeout bounds the embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds every option of a crawl. It is populated from CLI flags,
// environment overrides and the site file, then passed down explicitly.
//
// Design decision: a single flat struct, like the flag set it mirrors.
type Config struct {
	// Targets are the start URLs.
	Targets []string

	// Concurrency is the maximum number of links processed at once.
	Concurrency int

	// NoJitter disables the randomized pre-request delay.
	NoJitter bool

	// JitterMultiplier scales Concurrency into the jitter bound in ms.
	JitterMultiplier int

	// BufferSize, MaxURLLength and SlotCount size the href extractor.
	// Zero keeps the extractor defaults.
	BufferSize   int
	MaxURLLength int
	SlotCount    int

	// Timeout applies to each request.
	Timeout time.Duration

	// MaxPages caps the number of links processed per start URL. 0 means no limit.
	MaxPages int

	// RateLimit is the per-host request rate in requests per second. 0 means unlimited.
	RateLimit float64

	// UserAgent is sent with every request.
	UserAgent string

	// MaxBodySize bounds how many bytes of a page are read.
	MaxBodySize int64

	// BrokenPolicy names the predicate deciding which statuses are broken.
	BrokenPolicy string

	// CheckExternal also verifies cross-host links (check mode only).
	CheckExternal bool

	// IgnoreRobots skips robots.txt checks.
	IgnoreRobots bool

	// Assets makes cache warming fetch same-host subresources too.
	Assets bool

	// Details re-fetches referrers of broken links for anchor text and line.
	Details bool

	// ProxyAddress routes requests through a SOCKS5 proxy (host:port).
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and crawls through it.
	UseTor bool

	// TorStartupTimeout bounds the Tor bootstrap.
	TorStartupTimeout time.Duration

	// BatchSize is how many start URLs are crawled concurrently.
	BatchSize int

	// ConfigFilePath is an explicit site file. Empty searches the defaults.
	ConfigFilePath string

	// SiteConfigs is the loaded site file, nil when none was found.
	SiteConfigs *File

	// JSONReport, MarkdownReport and XLSXReport select the report format.
	// At most one may be set; none means the text report.
	JSONReport     bool
	MarkdownReport bool
	XLSXReport     bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// SaveToDB stores results in the history database.
	SaveToDB bool

	// DBDir is the SQLite database directory.
	DBDir string

	// DBDSN selects a PostgreSQL database instead of SQLite when set.
	DBDSN string

	// Verbose enables debug logging.
	Verbose bool
}

// NewConfig returns a Config with the defaults above.
func NewConfig() *Config {
	return &Config{
		Concurrency:       DefaultConcurrency,
		JitterMultiplier:  DefaultJitterMultiplier,
		BufferSize:        DefaultBufferSize,
		MaxURLLength:      DefaultMaxURLLength,
		SlotCount:         DefaultSlotCount,
		Timeout:           DefaultTimeout,
		MaxPages:          DefaultMaxPages,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		BrokenPolicy:      DefaultBrokenPolicy,
		TorStartupTimeout: DefaultTorStartupTimeout,
		BatchSize:         DefaultBatchSize,
		SaveToDB:          true,
		DBDir:             XDGDataDir(),
	}
}

// JitterEnabled reports whether requests are delayed by jitter. Jitter is
// on by default whenever more than one request can be in flight.
func (c *Config) JitterEnabled() bool {
	return !c.NoJitter && c.Concurrency > 1 && c.JitterMultiplier > 0
}

// XDGDataDir returns the data directory, e.g. ~/.local/share/linkprobe.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, e.g. ~/.config/linkprobe.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, t := range c.Targets {
		u, err := url.Parse(t)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidTarget, t)
		}
	}
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.JitterMultiplier < 0 {
		return ErrInvalidJitterMultiplier
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	formats := 0
	for _, set := range []bool{c.JSONReport, c.MarkdownReport, c.XLSXReport} {
		if set {
			formats++
		}
	}
	if formats > 1 {
		return ErrConflictingReportFormats
	}
	if c.XLSXReport && c.ReportFile == "" {
		return ErrXLSXNeedsOutput
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}
	return nil
}
