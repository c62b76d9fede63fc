package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/imagecrawl/internal/model"
)

// FileName is the name of the history database inside its directory.
const FileName = "imagecrawl.db"

// ErrRunNotFound is returned by GetRun when no run has the given ID.
var ErrRunNotFound = errors.New("run not found")

// HistoryDB stores completed runs.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are a per-connection setting, so they go in the DSN.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &HistoryDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if err := h.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return h, nil
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		interrupted INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		steps TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Pages in traversal order
	CREATE TABLE IF NOT EXISTS pages (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		depth INTEGER NOT NULL,
		title TEXT,
		error TEXT,
		PRIMARY KEY (run_id, position)
	);

	-- Image addresses in discovery order with their download outcome
	CREATE TABLE IF NOT EXISTS images (
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		filename TEXT,
		outcome TEXT,
		bytes INTEGER NOT NULL DEFAULT 0,
		digest TEXT,
		error TEXT,
		metadata TEXT,
		PRIMARY KEY (run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_images_digest ON images(digest);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores run with its pages and images in one transaction and sets
// run.ID. Images without a download entry are stored without an outcome.
func (h *HistoryDB) SaveRun(ctx context.Context, run *model.Run) (int64, error) {
	steps, err := json.Marshal(run.PerformedSteps)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize steps: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
	INSERT INTO runs (seed, max_depth, output_dir, started_at, finished_at, interrupted, error, steps)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Seed,
		run.MaxDepth,
		run.OutputDir,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		run.Interrupted,
		nullString(run.ErrorMessage),
		string(steps),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	pageStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pages (run_id, position, url, depth, title, error) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer pageStmt.Close()

	for i, p := range run.Pages {
		if _, err := pageStmt.ExecContext(ctx, id, i, p.URL, p.Depth, nullString(p.Title), nullString(p.Error)); err != nil {
			return 0, fmt.Errorf("failed to insert page %s: %w", p.URL, err)
		}
	}

	imageStmt, err := tx.PrepareContext(ctx, `
	INSERT INTO images (run_id, position, url, filename, outcome, bytes, digest, error, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer imageStmt.Close()

	for i, row := range imageRows(run) {
		var metadata sql.NullString
		if len(row.Metadata) > 0 {
			b, err := json.Marshal(row.Metadata)
			if err != nil {
				return 0, fmt.Errorf("failed to serialize metadata: %w", err)
			}
			metadata = sql.NullString{String: string(b), Valid: true}
		}
		var outcome sql.NullString
		if row.downloaded {
			outcome = sql.NullString{String: row.Outcome.String(), Valid: true}
		}

		if _, err := imageStmt.ExecContext(ctx, id, i,
			row.URL,
			nullString(row.Filename),
			outcome,
			row.Bytes,
			nullString(row.Digest),
			nullString(row.Error),
			metadata,
		); err != nil {
			return 0, fmt.Errorf("failed to insert image %s: %w", row.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	run.ID = id
	return id, nil
}

type imageRow struct {
	model.ImageDownload
	downloaded bool
}

// imageRows pairs every collected image with its download result, if any.
func imageRows(run *model.Run) []imageRow {
	byURL := make(map[string]model.ImageDownload, len(run.Downloads))
	for _, d := range run.Downloads {
		byURL[d.URL] = d
	}
	rows := make([]imageRow, 0, len(run.Images))
	for _, img := range run.Images {
		d, ok := byURL[img]
		if !ok {
			d = model.ImageDownload{URL: img}
		}
		rows = append(rows, imageRow{ImageDownload: d, downloaded: ok})
	}
	return rows
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID          int64
	Seed        string
	MaxDepth    int
	OutputDir   string
	StartedAt   time.Time
	FinishedAt  time.Time
	Pages       int
	Images      int
	Succeeded   int
	Interrupted bool
}

// ListRuns returns runs newest first. A non-empty seed restricts the
// listing to runs of that exact seed. limit <= 0 means no limit.
func (h *HistoryDB) ListRuns(ctx context.Context, seed string, limit int) ([]RunSummary, error) {
	query := `
	SELECT r.id, r.seed, r.max_depth, r.output_dir, r.started_at, COALESCE(r.finished_at, ''), r.interrupted,
		(SELECT COUNT(*) FROM pages p WHERE p.run_id = r.id),
		(SELECT COUNT(*) FROM images i WHERE i.run_id = r.id),
		(SELECT COUNT(*) FROM images i WHERE i.run_id = r.id AND i.outcome IN (?, ?))
	FROM runs r`
	args := []any{model.OutcomeSaved.String(), model.OutcomeAlreadyPresent.String()}
	if seed != "" {
		query += " WHERE r.seed = ?"
		args = append(args, seed)
	}
	query += " ORDER BY r.id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished string
		if err := rows.Scan(&s.ID, &s.Seed, &s.MaxDepth, &s.OutputDir, &started, &finished,
			&s.Interrupted, &s.Pages, &s.Images, &s.Succeeded); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.StartedAt = parseTimestamp(started)
		s.FinishedAt = parseTimestamp(finished)
		results = append(results, s)
	}
	return results, rows.Err()
}

// GetRun loads a stored run with its pages and downloads.
func (h *HistoryDB) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	run := &model.Run{ID: id}
	var started, finished, steps, errMsg sql.NullString

	err := h.db.QueryRowContext(ctx, `
	SELECT seed, max_depth, output_dir, started_at, finished_at, interrupted, error, steps
	FROM runs WHERE id = ?`, id).Scan(
		&run.Seed, &run.MaxDepth, &run.OutputDir, &started, &finished,
		&run.Interrupted, &errMsg, &steps,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.StartedAt = parseTimestamp(started.String)
	run.FinishedAt = parseTimestamp(finished.String)
	run.ErrorMessage = errMsg.String
	if steps.Valid && steps.String != "" {
		if err := json.Unmarshal([]byte(steps.String), &run.PerformedSteps); err != nil {
			return nil, fmt.Errorf("failed to parse steps: %w", err)
		}
	}

	if run.Pages, err = h.loadPages(ctx, id); err != nil {
		return nil, err
	}
	if err := h.loadImages(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (h *HistoryDB) loadPages(ctx context.Context, runID int64) ([]model.PageVisit, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT url, depth, title, error FROM pages WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	defer rows.Close()

	pages := make([]model.PageVisit, 0)
	for rows.Next() {
		var p model.PageVisit
		var title, errMsg sql.NullString
		if err := rows.Scan(&p.URL, &p.Depth, &title, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Title = title.String
		p.Error = errMsg.String
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (h *HistoryDB) loadImages(ctx context.Context, run *model.Run) error {
	rows, err := h.db.QueryContext(ctx, `
	SELECT url, filename, outcome, bytes, digest, error, metadata
	FROM images WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}
	defer rows.Close()

	run.Images = make([]string, 0)
	for rows.Next() {
		var d model.ImageDownload
		var filename, outcome, digest, errMsg, metadata sql.NullString
		if err := rows.Scan(&d.URL, &filename, &outcome, &d.Bytes, &digest, &errMsg, &metadata); err != nil {
			return fmt.Errorf("failed to scan image: %w", err)
		}
		run.Images = append(run.Images, d.URL)
		if !outcome.Valid {
			continue
		}

		if d.Outcome, err = model.ParseOutcome(outcome.String); err != nil {
			return fmt.Errorf("image %s: %w", d.URL, err)
		}
		d.Filename = filename.String
		d.Digest = digest.String
		d.Error = errMsg.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &d.Metadata); err != nil {
				return fmt.Errorf("failed to parse metadata: %w", err)
			}
		}
		run.Downloads = append(run.Downloads, d)
	}
	return rows.Err()
}

// DeleteRun removes a run and its pages and images.
func (h *HistoryDB) DeleteRun(ctx context.Context, id int64) error {
	res, err := h.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTimestamp(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// timestampFormats lists the formats parseTimestamp accepts, most specific first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time for empty or unparseable input.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
