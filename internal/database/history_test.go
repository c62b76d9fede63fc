package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/imagecrawl/internal/model"
)

// setupTestDB opens a fresh database in a temporary directory.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleRun(seed string) *model.Run {
	run := model.NewRun(seed, 1, "/tmp/out")
	run.StartedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run.FinishedAt = run.StartedAt.Add(3 * time.Second)
	run.Pages = []model.PageVisit{
		{URL: seed, Depth: 0, Title: "Home"},
		{URL: seed + "b", Depth: 1},
		{URL: seed + "c", Depth: 1, Error: "HTTP 404"},
	}
	run.Images = []string{seed + "a.jpg", seed + "b.png", seed + "c.gif"}
	run.Downloads = []model.ImageDownload{
		{
			URL:      seed + "a.jpg",
			Filename: "a.jpg",
			Outcome:  model.OutcomeSaved,
			Bytes:    42,
			Digest:   "abcd",
			Metadata: map[string]string{"Make": "Cam"},
		},
		{URL: seed + "b.png", Filename: "b.png", Outcome: model.OutcomeAlreadyPresent},
		{URL: seed + "c.gif", Filename: "c.gif", Outcome: model.OutcomeSkipped, Error: "response is not image content"},
	}
	run.PerformedSteps = []string{"crawl", "download"}
	return run
}

// TestOpen tests database creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nested", "dir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("missing database without create fails", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{CreateIfNotExists: false})
		if err == nil {
			t.Error("expected error for missing database")
		}
	})

	t.Run("reopen keeps data", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := db.SaveRun(t.Context(), sampleRun("https://example.com/")); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close()

		db, err = Open(dir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(t.Context(), "", 0)
		if err != nil || len(runs) != 1 {
			t.Errorf("expected 1 run, got %d (%v)", len(runs), err)
		}
	})
}

// TestSaveAndGetRun tests that a stored run loads back intact.
func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	run := sampleRun("https://example.com/")

	id, err := db.SaveRun(t.Context(), run)
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}
	if id == 0 || run.ID != id {
		t.Fatalf("expected run ID to be set, got %d / %d", id, run.ID)
	}

	got, err := db.GetRun(t.Context(), id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}

	if got.Seed != run.Seed || got.MaxDepth != 1 || got.OutputDir != "/tmp/out" {
		t.Errorf("unexpected run header %+v", got)
	}
	if !got.StartedAt.Equal(run.StartedAt) || !got.FinishedAt.Equal(run.FinishedAt) {
		t.Errorf("timestamps differ: %v %v", got.StartedAt, got.FinishedAt)
	}
	if len(got.Pages) != 3 || got.Pages[2].Error != "HTTP 404" || got.Pages[1].Depth != 1 {
		t.Fatalf("unexpected pages %+v", got.Pages)
	}
	if got.Pages[0].Title != "Home" || got.Pages[1].Title != "" {
		t.Errorf("unexpected page titles %+v", got.Pages)
	}
	if len(got.Images) != 3 || got.Images[0] != run.Images[0] {
		t.Errorf("unexpected images %v", got.Images)
	}
	if len(got.Downloads) != 3 {
		t.Fatalf("expected 3 downloads, got %d", len(got.Downloads))
	}
	saved := got.Downloads[0]
	if saved.Outcome != model.OutcomeSaved || saved.Bytes != 42 || saved.Digest != "abcd" || saved.Metadata["Make"] != "Cam" {
		t.Errorf("unexpected saved download %+v", saved)
	}
	if got.Downloads[2].Error == "" {
		t.Error("expected error text to be kept")
	}
	if got.Succeeded() != 2 {
		t.Errorf("expected 2 succeeded, got %d", got.Succeeded())
	}
	if len(got.PerformedSteps) != 2 {
		t.Errorf("unexpected steps %v", got.PerformedSteps)
	}
}

// TestSaveRun_Interrupted tests a run cut short before downloading.
func TestSaveRun_Interrupted(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	run := sampleRun("https://example.com/")
	run.Downloads = nil
	run.FinishedAt = time.Time{}
	run.Interrupted = true
	run.ErrorMessage = "context canceled"

	id, err := db.SaveRun(t.Context(), run)
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	got, err := db.GetRun(t.Context(), id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if !got.Interrupted || got.ErrorMessage != "context canceled" {
		t.Errorf("expected interrupted run, got %+v", got)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("expected zero finish time, got %v", got.FinishedAt)
	}
	if len(got.Images) != 3 || len(got.Downloads) != 0 {
		t.Errorf("expected images without downloads, got %d/%d", len(got.Images), len(got.Downloads))
	}
}

// TestListRuns tests listing order, filtering and counts.
func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	for _, seed := range []string{"https://a.example/", "https://b.example/", "https://a.example/"} {
		if _, err := db.SaveRun(t.Context(), sampleRun(seed)); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}

	tests := []struct {
		name  string
		seed  string
		limit int
		want  int
	}{
		{name: "all runs", want: 3},
		{name: "filtered by seed", seed: "https://a.example/", want: 2},
		{name: "unknown seed", seed: "https://c.example/", want: 0},
		{name: "limited", limit: 1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			runs, err := db.ListRuns(t.Context(), tt.seed, tt.limit)
			if err != nil {
				t.Fatalf("failed to list runs: %v", err)
			}
			if len(runs) != tt.want {
				t.Fatalf("expected %d runs, got %d", tt.want, len(runs))
			}
			for i := 1; i < len(runs); i++ {
				if runs[i-1].ID < runs[i].ID {
					t.Error("expected newest first")
				}
			}
			for _, r := range runs {
				if r.Pages != 3 || r.Images != 3 || r.Succeeded != 2 {
					t.Errorf("unexpected counts %+v", r)
				}
			}
		})
	}
}

// TestGetRun_NotFound tests the missing-run sentinel.
func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	if _, err := db.GetRun(t.Context(), 99); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

// TestDeleteRun tests removal with cascading pages and images.
func TestDeleteRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	id, err := db.SaveRun(t.Context(), sampleRun("https://example.com/"))
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}

	if err := db.DeleteRun(t.Context(), id); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := db.GetRun(t.Context(), id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected deleted run to be gone, got %v", err)
	}
	if err := db.DeleteRun(t.Context(), id); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound on second delete, got %v", err)
	}

	var pages int
	if err := db.db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM pages").Scan(&pages); err != nil {
		t.Fatalf("failed to count pages: %v", err)
	}
	if pages != 0 {
		t.Errorf("expected pages to cascade, %d left", pages)
	}
}

// TestParseTimestamp tests the accepted formats.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		zero bool
	}{
		{in: "2024-05-01T10:00:00.123456789Z"},
		{in: "2024-05-01T10:00:00Z"},
		{in: "2024-05-01 10:00:00"},
		{in: "", zero: true},
		{in: "yesterday", zero: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.in, got)
			}
		})
	}
}
