package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/imagecrawl/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *model.Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *model.Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if len(p.StepNames()) != 0 {
			t.Errorf("expected 0 steps, got %d", len(p.StepNames()))
		}
		if p.Logger() == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		if !New(WithContinueOnError(true)).continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddSteps tests adding steps to the pipeline.
func TestPipelineAddSteps(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddSteps(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	if len(p.StepNames()) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(p.StepNames()))
	}
	expected := []string{"first", "second", "third"}
	for i, name := range p.StepNames() {
		if name != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
		}
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		p := New()
		for _, name := range []string{"crawl", "download"} {
			p.AddSteps(&mockStep{
				name: name,
				doFunc: func(_ context.Context, _ *model.Run) error {
					order = append(order, name)
					return nil
				},
			})
		}

		run := model.NewRun("https://example.com/", 2, "out")
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(order, ",") != "crawl,download" {
			t.Errorf("unexpected order %v", order)
		}
		if strings.Join(run.PerformedSteps, ",") != "crawl,download" {
			t.Errorf("unexpected performed steps %v", run.PerformedSteps)
		}
		if run.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
		if run.Interrupted || run.ErrorMessage != "" {
			t.Errorf("unexpected failure state %+v", run)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		second := &mockStep{name: "second"}
		p := New()
		p.AddSteps(&mockStep{
			name:   "first",
			doFunc: func(context.Context, *model.Run) error { return boom },
		}, second)

		run := model.NewRun("https://example.com/", 2, "out")
		if err := p.Execute(context.Background(), run); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if second.callCount != 0 {
			t.Error("second step must not run")
		}
		if run.ErrorMessage != "boom" || run.Interrupted {
			t.Errorf("unexpected run state %+v", run)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "second"}
		p := New(WithContinueOnError(true))
		p.AddSteps(&mockStep{
			name:   "first",
			doFunc: func(context.Context, *model.Run) error { return errors.New("boom") },
		}, second)

		run := model.NewRun("https://example.com/", 2, "out")
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.callCount != 1 {
			t.Error("second step should run")
		}
	})

	t.Run("cancellation inside a step marks the run interrupted", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		second := &mockStep{name: "download"}
		p := New(WithContinueOnError(true))
		p.AddSteps(&mockStep{
			name: "crawl",
			doFunc: func(ctx context.Context, run *model.Run) error {
				run.Images = append(run.Images, "https://example.com/a.png")
				cancel()
				return ctx.Err()
			},
		}, second)

		run := model.NewRun("https://example.com/", 2, "out")
		if err := p.Execute(ctx, run); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if !run.Interrupted {
			t.Error("expected interrupted run")
		}
		if second.callCount != 0 {
			t.Error("cancellation must stop the pipeline even with continueOnError")
		}
		if len(run.Images) != 1 {
			t.Error("partial results must be kept")
		}
	})

	t.Run("cancelled before start runs nothing", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "crawl"}
		p := New()
		p.AddSteps(step)

		run := model.NewRun("https://example.com/", 2, "out")
		if err := p.Execute(ctx, run); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 || !run.Interrupted || len(run.PerformedSteps) != 0 {
			t.Errorf("unexpected state: calls=%d run=%+v", step.callCount, run)
		}
	})
}

// TestPipelineWithLogger tests the WithLogger option.
func TestPipelineWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := New(WithLogger(logger))
	p.AddSteps(&mockStep{name: "crawl"})
	if err := p.Execute(context.Background(), model.NewRun("https://example.com/", 0, "out")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), "executing step") || !strings.Contains(buf.String(), "step=crawl") {
		t.Errorf("expected step log, got %s", buf.String())
	}
}
