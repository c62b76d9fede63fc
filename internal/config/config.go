package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "imagecrawl"

	// DefaultCrawlDepth follows links two hops away from the starting page.
	// Depth 0 fetches only the starting page.
	DefaultCrawlDepth = 2

	// DefaultPageTimeout bounds a single page fetch.
	DefaultPageTimeout = 10 * time.Second

	// DefaultImageTimeout is an idle timeout for image downloads: the
	// transfer fails only when no bytes arrive for this long.
	DefaultImageTimeout = 20 * time.Second

	// DefaultCrawlDelay is the pause after each successfully fetched page.
	DefaultCrawlDelay = 500 * time.Millisecond

	// DefaultCrawlWorkers keeps page fetching sequential.
	DefaultCrawlWorkers = 1

	// DefaultDownloadWorkers is the number of concurrent image downloads.
	DefaultDownloadWorkers = 4

	// DefaultMaxPages of 0 means no page cap beyond the depth bound.
	DefaultMaxPages = 0

	// DefaultMaxBodySize limits how much of a page body is parsed.
	// Images are streamed and are not subject to this limit.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultUserAgent is a desktop browser string. Some image hosts refuse
	// requests from obvious non-browser clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// CollisionSkip keeps the last path segment as the file name; the first
	// image written under a name wins.
	CollisionSkip = "skip"

	// CollisionHash appends a short digest of the image URL to the file name.
	CollisionHash = "hash"

	// DefaultCollisionPolicy is CollisionSkip.
	DefaultCollisionPolicy = CollisionSkip
)

// DefaultImageAttributes is the <img> attribute preference list. The first
// non-empty attribute wins, so lazy-loading attributes beat placeholder src values.
func DefaultImageAttributes() []string {
	return []string{"data-src", "data-lazyload", "src"}
}

// Config holds all configuration options for one imagecrawl run.
// It is populated from CLI flags and passed through the application
// rather than kept in global state.
//
// Design decision: A single flat struct, as the option count is small.
// Per-site overrides live in SiteConfigs and are merged at the point of use.
type Config struct {
	// SiteURL is the starting page address.
	SiteURL string

	// OutputDir is where downloaded images are written. Created if missing.
	OutputDir string

	// CrawlDepth is the maximum link depth. Images on pages at exactly
	// this depth are still collected; their links are not followed.
	CrawlDepth int

	// PageTimeout bounds each page fetch.
	PageTimeout time.Duration

	// ImageTimeout is the idle-read timeout for each image download.
	ImageTimeout time.Duration

	// CrawlDelay is the pause after each successfully fetched page.
	CrawlDelay time.Duration

	// CrawlWorkers is the number of pages of one depth level fetched concurrently.
	CrawlWorkers int

	// DownloadWorkers is the number of concurrent image downloads.
	DownloadWorkers int

	// MaxPages caps the number of fetched pages. 0 means no cap.
	MaxPages int

	// MaxBodySize is the maximum page body size in bytes to parse.
	MaxBodySize int64

	// UserAgent is sent with every request.
	UserAgent string

	// CollisionPolicy is CollisionSkip or CollisionHash.
	CollisionPolicy string

	// ExtractExif enables EXIF metadata extraction from saved images.
	ExtractExif bool

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" format.
	ProxyAddress string

	// Verbose enables debug logging, which includes per-page and per-image failures.
	Verbose bool

	// ConfigFilePath is an explicit configuration file path. When empty
	// the file is searched for in the usual locations.
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// JSONReport selects the JSON report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When empty the report is written to stdout.
	ReportFile string

	// DBDir is the directory holding the history database.
	DBDir string

	// SaveToDB controls whether the run is recorded in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeouts, worker counts).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		CrawlDepth:      DefaultCrawlDepth,
		PageTimeout:     DefaultPageTimeout,
		ImageTimeout:    DefaultImageTimeout,
		CrawlDelay:      DefaultCrawlDelay,
		CrawlWorkers:    DefaultCrawlWorkers,
		DownloadWorkers: DefaultDownloadWorkers,
		MaxPages:        DefaultMaxPages,
		MaxBodySize:     DefaultMaxBodySize,
		UserAgent:       DefaultUserAgent,
		CollisionPolicy: DefaultCollisionPolicy,
		DBDir:           XDGDataDir(),
		SaveToDB:        true,
	}
}

// XDGDataDir returns the XDG data directory for imagecrawl.
// On Linux: ~/.local/share/imagecrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for imagecrawl.
// On Linux: ~/.config/imagecrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found as a sentinel error.
func (c *Config) Validate() error {
	if c.SiteURL == "" {
		return ErrNoSiteURL
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if c.CrawlDepth < 0 {
		return ErrInvalidDepth
	}
	if c.PageTimeout <= 0 || c.ImageTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.CrawlWorkers <= 0 || c.DownloadWorkers <= 0 {
		return ErrInvalidWorkers
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.CollisionPolicy != CollisionSkip && c.CollisionPolicy != CollisionHash {
		return ErrInvalidCollisionPolicy
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// SiteFor returns the merged site configuration for the given host
// (network location, e.g. "example.com" or "example.com:8080").
// It returns an empty SiteConfig when no configuration file was loaded.
func (c *Config) SiteFor(host string) SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	return c.SiteConfigs.GetSiteConfig(host)
}

// ForSite returns a copy of c with the configuration-file entry for host
// applied, together with that entry. The site depth replaces CrawlDepth only
// when keepDepth is false, so an explicit --depth flag wins.
func (c *Config) ForSite(host string, keepDepth bool) (*Config, SiteConfig) {
	site := c.SiteFor(host)
	out := *c
	if site.Depth != nil && !keepDepth {
		out.CrawlDepth = *site.Depth
	}
	if site.UserAgent != "" {
		out.UserAgent = site.UserAgent
	}
	return &out, site
}
