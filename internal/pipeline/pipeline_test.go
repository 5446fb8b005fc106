package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/nao1215/linkprobe/internal/model"
)

// mockStep is a Step whose behavior is set per test.
type mockStep struct {
	name   string
	doFunc func(ctx context.Context, report *model.CrawlReport) error
	calls  atomic.Int32
}

func (m *mockStep) Do(ctx context.Context, report *model.CrawlReport) error {
	m.calls.Add(1)
	if m.doFunc != nil {
		return m.doFunc(ctx, report)
	}
	return nil
}

func (m *mockStep) Name() string {
	return m.name
}

func TestPipeline_AddSteps(t *testing.T) {
	t.Parallel()

	p := New()
	if p.StepCount() != 0 {
		t.Fatalf("StepCount() = %d, want 0", p.StepCount())
	}

	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	want := []string{"first", "second", "third"}
	if got := p.StepNames(); !slices.Equal(got, want) {
		t.Errorf("StepNames() = %v, want %v", got, want)
	}
}

func TestPipeline_Execute(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	t.Run("runs steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.CrawlReport) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("a"), record("b"), record("c"))
		if err := p.Execute(context.Background(), model.NewCrawlReport("https://example.com/", model.ModeCheck)); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if want := []string{"a", "b", "c"}; !slices.Equal(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		failing := &mockStep{name: "failing", doFunc: func(context.Context, *model.CrawlReport) error {
			return errBoom
		}}
		after := &mockStep{name: "after"}

		p := New()
		p.AddSteps(failing, after)
		report := model.NewCrawlReport("https://example.com/", model.ModeCheck)

		if err := p.Execute(context.Background(), report); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() error = %v, want %v", err, errBoom)
		}
		if after.calls.Load() != 0 {
			t.Error("step after the failure ran")
		}
		if len(report.Errors) != 1 || report.Errors[0] != "failing: boom" {
			t.Errorf("Errors = %v", report.Errors)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		failing := &mockStep{name: "failing", doFunc: func(context.Context, *model.CrawlReport) error {
			return errBoom
		}}
		after := &mockStep{name: "after"}

		p := New(WithContinueOnError(true))
		p.AddSteps(failing, after)
		report := model.NewCrawlReport("https://example.com/", model.ModeCheck)

		if err := p.Execute(context.Background(), report); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if after.calls.Load() != 1 {
			t.Error("step after the failure did not run")
		}
		if len(report.Errors) != 1 {
			t.Errorf("Errors = %v, want one entry", report.Errors)
		}
	})

	t.Run("cancellation between steps", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		first := &mockStep{name: "first", doFunc: func(context.Context, *model.CrawlReport) error {
			cancel()
			return nil
		}}
		second := &mockStep{name: "second"}

		p := New()
		p.AddSteps(first, second)
		report := model.NewCrawlReport("https://example.com/", model.ModeCheck)

		if err := p.Execute(ctx, report); !errors.Is(err, context.Canceled) {
			t.Fatalf("Execute() error = %v, want context.Canceled", err)
		}
		if second.calls.Load() != 0 {
			t.Error("second step ran after cancellation")
		}
		if !report.Cancelled {
			t.Error("report not marked cancelled")
		}
	})
}
