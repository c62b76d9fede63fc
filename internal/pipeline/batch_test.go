package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/nao1215/imagecrawl/internal/model"
)

func recordingFactory(calls *atomic.Int64) Factory {
	return func(seed string) (*Pipeline, *model.Run, error) {
		calls.Add(1)
		if seed == "bad" {
			return nil, nil, errors.New("invalid seed")
		}
		p := New()
		p.AddSteps(&mockStep{
			name: "crawl",
			doFunc: func(_ context.Context, run *model.Run) error {
				run.Images = append(run.Images, run.Seed+"a.png")
				return nil
			},
		})
		return p, model.NewRun(seed, 1, "out"), nil
	}
}

// TestBatchProcessorProcess tests ordering, callbacks and setup failures.
func TestBatchProcessorProcess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	bp := NewBatchProcessor(recordingFactory(&calls))
	seeds := []string{"https://a.example/", "bad", "https://c.example/"}

	var seen []int
	runs := bp.Process(context.Background(), seeds, func(_ *model.Run, i int) {
		// Each callback runs before the next seed starts.
		if int(calls.Load()) != i+1 {
			t.Errorf("callback %d ran after %d factory calls", i, calls.Load())
		}
		seen = append(seen, i)
	})

	if len(runs) != 3 || calls.Load() != 3 || len(seen) != 3 {
		t.Fatalf("unexpected counts runs=%d calls=%d callbacks=%d", len(runs), calls.Load(), len(seen))
	}
	for i, run := range runs {
		if run.Seed != seeds[i] {
			t.Errorf("run %d out of order: %s", i, run.Seed)
		}
		if seen[i] != i {
			t.Errorf("callback %d out of order: %d", i, seen[i])
		}
	}
	if runs[1].ErrorMessage == "" {
		t.Error("expected setup error recorded")
	}
	if len(runs[0].Images) != 1 || runs[0].FinishedAt.IsZero() {
		t.Errorf("unexpected first run %+v", runs[0])
	}
}

// TestBatchProcessorCancelled tests that no seed starts after cancellation.
func TestBatchProcessorCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	runs := NewBatchProcessor(recordingFactory(&calls)).Process(ctx, []string{"https://a.example/"}, nil)
	if calls.Load() != 0 {
		t.Errorf("expected no runs, got %d", calls.Load())
	}
	if len(runs) != 1 || runs[0] != nil {
		t.Errorf("expected a nil entry, got %v", runs)
	}
}
