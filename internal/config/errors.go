package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). Callers use errors.Is()
// for programmatic handling while users still get a readable message.
var (
	// ErrNoSiteURL is returned when no starting address was given or entered.
	ErrNoSiteURL = errors.New("no site URL specified: pass it as an argument or enter it at the prompt")

	// ErrNoOutputDir is returned when no output directory was given or entered.
	ErrNoOutputDir = errors.New("no output directory specified: use --output-dir or enter it at the prompt")

	// ErrInvalidDepth is returned when the crawl depth is negative.
	// Depth 0 is valid and means only the starting page is fetched.
	ErrInvalidDepth = errors.New("invalid crawl depth: must be non-negative")

	// ErrInvalidTimeout is returned when a page or image timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidCrawlDelay is returned when the crawl delay is negative.
	// Use 0 for no delay between page requests.
	ErrInvalidCrawlDelay = errors.New("invalid crawl delay: must be non-negative")

	// ErrInvalidWorkers is returned when a worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid worker count: must be positive")

	// ErrInvalidMaxPages is returned when the page cap is negative.
	// Use 0 for no cap.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidCollisionPolicy is returned for an unknown --collision value.
	ErrInvalidCollisionPolicy = errors.New("invalid collision policy: must be \"skip\" or \"hash\"")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")
)
