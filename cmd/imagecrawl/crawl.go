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
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/imagecrawl/internal/config"
	"github.com/nao1215/imagecrawl/internal/crawler"
	"github.com/nao1215/imagecrawl/internal/database"
	"github.com/nao1215/imagecrawl/internal/fetch"
	applog "github.com/nao1215/imagecrawl/internal/log"
	"github.com/nao1215/imagecrawl/internal/model"
	"github.com/nao1215/imagecrawl/internal/pipeline"
	"github.com/nao1215/imagecrawl/internal/progress"
	"github.com/nao1215/imagecrawl/internal/report"
)

// errInterrupted is returned when a signal stopped the crawl. Results gathered
// up to that point have already been reported and saved.
var errInterrupted = errors.New("crawl interrupted")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [site-url...]",
		Short: "Crawl a website and download its images",
		Long: `Crawl maps a website breadth-first and downloads every image it finds.

Only links on exactly the same host (and port) as the starting page are
followed, up to --depth hops away. Images are collected from every visited
page, wherever they are hosted, and saved under their original file name.

When no site URL or output directory is given, you are asked for them.
"https://" is added to addresses that do not start with "http".

Examples:
  # Crawl two levels deep and save into ./scrapes
  imagecrawl crawl example.com -o scrapes

  # Only the starting page
  imagecrawl crawl https://example.com/gallery -o scrapes -d 0

  # Several sites, eight parallel downloads, hashed file names
  imagecrawl crawl site1.example site2.example -o scrapes -w 8 --collision hash

  # Route through a local Tor SOCKS proxy
  imagecrawl crawl --proxy 127.0.0.1:9050 example.com -o scrapes

  # Write a Markdown report including EXIF metadata
  imagecrawl crawl example.com -o scrapes --exif --markdown --report report.md

Configuration file (.imagecrawl) example:
  sites:
    example.com:
      cookie: "session_id=abc123"
      depth: 3
      followPatterns:
        - "/gallery/*"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringP("output-dir", "o", "",
		"Directory to save images into (asked for when omitted)")
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum link depth to follow (0 = starting page only)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to fetch per site (0 = no limit)")
	cmd.Flags().Duration("delay", config.DefaultCrawlDelay,
		"Pause after each fetched page")
	cmd.Flags().Duration("page-timeout", config.DefaultPageTimeout,
		"Timeout for each page request")
	cmd.Flags().Duration("image-timeout", config.DefaultImageTimeout,
		"Abort an image download when no data arrives for this long")
	cmd.Flags().Int("crawl-workers", config.DefaultCrawlWorkers,
		"Number of pages of one depth level fetched concurrently")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().String("proxy", "",
		"Route requests through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")

	// Download flags
	cmd.Flags().IntP("workers", "w", config.DefaultDownloadWorkers,
		"Number of concurrent image downloads")
	cmd.Flags().String("collision", config.DefaultCollisionPolicy,
		`File name collision policy: "skip" keeps the first image, "hash" adds a URL digest`)
	cmd.Flags().Bool("exif", false,
		"Extract EXIF metadata from saved images into the report")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .imagecrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write the report to the specified file path (creates directories if needed)")

	// Logging and history
	cmd.Flags().Bool("log-json", false, "Write log messages as JSON")
	cmd.Flags().Bool("no-history", false, "Do not record this run in the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	status := statusWriter(cfg, stdout, cmd.ErrOrStderr())

	seeds, err := resolveInputs(cfg, args, newPrompter(cmd.InOrStdin(), status))
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if err := prepareOutputDir(status, cfg.OutputDir); err != nil {
		return err
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(os.Stderr, cfg.Verbose, logJSON)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, finishing with partial results...")
			cancel()
		case <-ctx.Done():
		}
	}()

	r := &crawlRunner{
		cfg:           cfg,
		keepDepth:     cmd.Flags().Changed("depth"),
		keepUserAgent: cmd.Flags().Changed("user-agent"),
		logger:        logger,
		stdout:        stdout,
		status:        status,
		newSink:       func() progress.Sink { return progress.New(os.Stderr) },
	}
	return r.run(ctx, seeds)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
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

// buildConfig creates a Config from cobra command flags and the configuration
// file. The site URL and output directory may still be empty afterwards.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.CrawlDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
		return nil, err
	}
	if cfg.CrawlDelay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.PageTimeout, err = flags.GetDuration("page-timeout"); err != nil {
		return nil, err
	}
	if cfg.ImageTimeout, err = flags.GetDuration("image-timeout"); err != nil {
		return nil, err
	}
	if cfg.CrawlWorkers, err = flags.GetInt("crawl-workers"); err != nil {
		return nil, err
	}
	if cfg.DownloadWorkers, err = flags.GetInt("workers"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.CollisionPolicy, err = flags.GetString("collision"); err != nil {
		return nil, err
	}
	if cfg.ExtractExif, err = flags.GetBool("exif"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory
	cfg.DBDir = config.XDGDataDir()
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicitly named file must exist; otherwise a missing file means
	// no site settings.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.SiteConfigs, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	default:
		cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	}

	return cfg, nil
}

// resolveInputs asks for a missing site URL or output directory, normalizes
// every site URL and announces the settings on p's output.
func resolveInputs(cfg *config.Config, args []string, p *prompter) ([]string, error) {
	raw := args
	if len(raw) == 0 {
		answer, err := p.ask(siteURLQuestion, siteURLEmpty)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrNoSiteURL, err)
		}
		raw = []string{answer}
	}

	seeds := make([]string, 0, len(raw))
	for _, r := range raw {
		seed, err := crawler.NormalizeSeed(r)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed)
		fmt.Fprintf(p.out, "Using URL: %s\n", seed)
	}
	cfg.SiteURL = seeds[0]

	if cfg.OutputDir == "" {
		answer, err := p.ask(outputDirQuestion, outputDirEmpty)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrNoOutputDir, err)
		}
		cfg.OutputDir = answer
	}
	fmt.Fprintf(p.out, "Saving images to: %s\n", cfg.OutputDir)

	return seeds, nil
}

// setupLogger creates the structured logger. Sensitive attributes such as
// cookies and signed URL parameters are masked.
func setupLogger(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return applog.NewSecureJSONLogger(w, verbose)
	}
	return applog.NewSecureLogger(w, verbose)
}

// machineReport reports whether the report is JSON or Markdown written to stdout.
func machineReport(cfg *config.Config) bool {
	return (cfg.JSONReport || cfg.MarkdownReport) && cfg.ReportFile == ""
}

// statusWriter returns where progress messages go. They move to stderr when
// stdout carries a JSON or Markdown report.
func statusWriter(cfg *config.Config, stdout, stderr io.Writer) io.Writer {
	if machineReport(cfg) {
		return stderr
	}
	return stdout
}

// crawlRunner runs one crawl invocation over its seeds.
type crawlRunner struct {
	cfg *config.Config

	// keepDepth and keepUserAgent stop the configuration file from
	// overriding values given explicitly on the command line.
	keepDepth     bool
	keepUserAgent bool

	logger  *slog.Logger
	stdout  io.Writer
	status  io.Writer
	newSink func() progress.Sink
}

// run crawls every seed in order, then reports and records each run as soon
// as it finishes. It returns errInterrupted when ctx was cancelled.
func (r *crawlRunner) run(ctx context.Context, seeds []string) error {
	cfg := r.cfg
	r.logger.Info("starting crawl",
		"sites", len(seeds),
		"depth", cfg.CrawlDepth,
		"outputDir", cfg.OutputDir,
		"saveToDB", cfg.SaveToDB,
	)

	if err := checkProxy(ctx, cfg.ProxyAddress); err != nil {
		return err
	}

	var db *database.HistoryDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
		r.logger.Info("history database opened", "path", db.Path())
	}

	out, closeOut, err := openReportOutput(cfg, r.stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeOut(); err != nil {
			r.logger.Error("failed to close report file", "path", cfg.ReportFile, "error", err)
		}
	}()
	writer := newReportWriter(cfg, out)
	if cfg.ReportFile != "" {
		// The file gets the selected format; stdout keeps the text summary.
		writer = report.NewMultiWriter(writer, report.NewSimpleWriter(r.stdout, report.WithVerbose(cfg.Verbose)))
	}

	var (
		mu    sync.Mutex
		sinks = make(map[*model.Run]progress.Sink)
	)
	factory := func(seed string) (*pipeline.Pipeline, *model.Run, error) {
		siteCfg, site := r.configFor(seed)
		sink := r.newSink()
		p, err := pipeline.DefaultPipeline(siteCfg, site, sink,
			pipeline.WithLogger(r.logger),
			pipeline.WithContinueOnError(true),
		)
		if err != nil {
			return nil, nil, err
		}

		run := model.NewRun(seed, siteCfg.CrawlDepth, siteCfg.OutputDir)
		mu.Lock()
		sinks[run] = sink
		mu.Unlock()

		fmt.Fprintf(r.status, "Starting crawl of %s to map the site...\n", seed)
		return p, run, nil
	}

	start := time.Now()
	bp := pipeline.NewBatchProcessor(factory, pipeline.WithBatchLogger(r.logger))
	bp.Process(ctx, seeds, func(run *model.Run, _ int) {
		mu.Lock()
		sink := sinks[run]
		delete(sinks, run)
		mu.Unlock()
		if f, ok := sink.(interface{ Finish() }); ok {
			f.Finish()
		}
		r.finishRun(ctx, db, writer, run)
	})
	r.logger.Info("crawl complete", "sites", len(seeds), "elapsed", time.Since(start).Round(time.Millisecond))

	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

// configFor resolves the per-site configuration for seed.
func (r *crawlRunner) configFor(seed string) (*config.Config, config.SiteConfig) {
	var host string
	if u, err := url.Parse(seed); err == nil {
		host = u.Host
	}
	siteCfg, site := r.cfg.ForSite(host, r.keepDepth)
	if r.keepUserAgent {
		siteCfg.UserAgent = r.cfg.UserAgent
	}
	return siteCfg, site
}

// finishRun saves run to the history database, prints the closing lines and
// writes the report. Failures here are logged and never abort the remaining sites.
func (r *crawlRunner) finishRun(ctx context.Context, db *database.HistoryDB, w report.Writer, run *model.Run) {
	if run.ErrorMessage != "" && !run.Interrupted {
		fmt.Fprintf(r.status, "Crawl error for %s: %s\n", run.Seed, run.ErrorMessage)
	}

	if db != nil {
		// The run is recorded even after an interrupt.
		if _, err := db.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			r.logger.Error("failed to save run", "seed", run.Seed, "error", err)
		} else {
			r.logger.Info("run saved to history", "seed", run.Seed, "id", run.ID)
		}
	}

	// The text summary on stdout already ends with these lines.
	if machineReport(r.cfg) {
		fmt.Fprintln(r.status, report.CrawlFinishedLine(run))
		fmt.Fprintln(r.status, report.DownloadCompleteLine(run))
	}

	if _, err := w.Write(run); err != nil {
		r.logger.Error("failed to write report", "seed", run.Seed, "error", err)
	}
}

// checkProxy verifies that address is a reachable SOCKS5 proxy.
func checkProxy(ctx context.Context, address string) error {
	if address == "" {
		return nil
	}
	client, err := fetch.NewClient(fetch.WithProxy(address))
	if err != nil {
		return fmt.Errorf("invalid proxy %q: %w", address, err)
	}
	if err := client.CheckProxy(ctx); err != nil {
		return fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)", err, client.ProxyAddress())
	}
	return nil
}

// openReportOutput returns the report destination: the --report file, created
// with owner-only permissions, or stdout. The returned function closes it.
func openReportOutput(cfg *config.Config, stdout io.Writer) (io.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return stdout, func() error { return nil }, nil
	}

	if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	// Reports can list pages behind a login, so only the owner may read them.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter selects the report format.
func newReportWriter(cfg *config.Config, w io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w)
	default:
		return report.NewSimpleWriter(w, report.WithVerbose(cfg.Verbose))
	}
}
