package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/imagecrawl/internal/config"
	"github.com/nao1215/imagecrawl/internal/crawler"
	"github.com/nao1215/imagecrawl/internal/database"
)

// defaultHistoryLimit is the number of runs listed when --limit is not given.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [site-url]",
		Short: "Show previous crawl runs",
		Long: `History lists the crawl runs recorded in the local history database.

Every crawl is recorded unless it was started with --no-history. Use --id to
show a single run with every visited page and image outcome.

Examples:
  # List the most recent runs
  imagecrawl history

  # List runs of one site
  imagecrawl history example.com

  # Show run 5 as Markdown
  imagecrawl history --id 5 --markdown

  # Remove run 5
  imagecrawl history --id 5 --delete`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 = all)")
	cmd.Flags().Int64P("id", "i", 0,
		"Show the run with this ID (see the list for available IDs)")
	cmd.Flags().Bool("delete", false,
		"Delete the run given with --id")
	cmd.Flags().BoolP("json", "j", false,
		"Show the run as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Show the run as Markdown (mutually exclusive with --json)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	id, err := flags.GetInt64("id")
	if err != nil {
		return err
	}
	del, err := flags.GetBool("delete")
	if err != nil {
		return err
	}

	// Only the report format fields are used for showing a run.
	view := &config.Config{Verbose: true}
	if view.JSONReport, err = flags.GetBool("json"); err != nil {
		return err
	}
	if view.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return err
	}

	// Validate arguments before opening the database.
	if view.JSONReport && view.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	if del && id == 0 {
		return errors.New("--delete requires --id")
	}
	if limit < 0 {
		return errors.New("--limit must be non-negative")
	}

	var seed string
	if len(args) == 1 {
		if seed, err = crawler.NormalizeSeed(args[0]); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	dbDir := config.XDGDataDir()
	if _, err := os.Stat(filepath.Join(dbDir, database.FileName)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No crawl history found.")
		fmt.Fprintln(out, "\nUse 'imagecrawl crawl <site-url>' to crawl a site.")
		return nil
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case del:
		return deleteRun(ctx, out, db, id)
	case id != 0:
		return showRun(ctx, out, db, id, view)
	default:
		return listRuns(ctx, out, db, seed, limit)
	}
}

// listRuns prints the most recent runs, newest first.
func listRuns(ctx context.Context, w io.Writer, db *database.HistoryDB, seed string, limit int) error {
	runs, err := db.ListRuns(ctx, seed, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		if seed != "" {
			fmt.Fprintf(w, "No runs found for %s\n", seed)
		} else {
			fmt.Fprintln(w, "No runs found.")
		}
		fmt.Fprintln(w, "\nUse 'imagecrawl crawl <site-url>' to crawl a site.")
		return nil
	}

	title := "Crawl history"
	if seed != "" {
		title += " for " + seed
	}
	fmt.Fprintf(w, "%s (%d runs):\n\n", title, len(runs))
	fmt.Fprintf(w, "  %-6s  %-19s  %6s  %6s  %6s  %s\n", "ID", "Started", "Pages", "Images", "Saved", "Site")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 76))

	for _, r := range runs {
		site := r.Seed
		if r.Interrupted {
			site += " (interrupted)"
		}
		fmt.Fprintf(w, "  %-6d  %-19s  %6d  %6d  %6d  %s, %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Pages,
			r.Images,
			r.Succeeded,
			site,
			humanize.Time(r.StartedAt),
		)
	}

	fmt.Fprintln(w, "\nUse 'imagecrawl history --id <id>' to show a run.")
	return nil
}

// showRun writes one stored run in the requested report format.
func showRun(ctx context.Context, w io.Writer, db *database.HistoryDB, id int64, view *config.Config) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("no run with ID %d (use 'imagecrawl history' to list runs)", id)
		}
		return fmt.Errorf("failed to load run %d: %w", id, err)
	}

	if _, err := newReportWriter(view, w).Write(run); err != nil {
		return fmt.Errorf("failed to write run %d: %w", id, err)
	}
	return nil
}

// deleteRun removes one stored run.
func deleteRun(ctx context.Context, w io.Writer, db *database.HistoryDB, id int64) error {
	if err := db.DeleteRun(ctx, id); err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return fmt.Errorf("no run with ID %d", id)
		}
		return fmt.Errorf("failed to delete run %d: %w", id, err)
	}
	fmt.Fprintf(w, "Deleted run %d\n", id)
	return nil
}
