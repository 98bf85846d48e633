package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/pipeline"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// mockGenerationRunner implements GenerationRunner for testing.
type mockGenerationRunner struct {
	mu       sync.Mutex
	calls    int
	lastOpts pipeline.RunOptions
	err      error
	block    chan struct{}
	started  chan struct{}
}

func (m *mockGenerationRunner) Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.RunReport, error) {
	m.mu.Lock()
	m.calls++
	m.lastOpts = opts
	block, started, err := m.block, m.started, m.err
	m.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &pipeline.RunReport{ID: "run-1", Strategy: opts.Strategy, Inserted: 3}, nil
}

func (m *mockGenerationRunner) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockProgress struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockProgress) Progress(ctx context.Context) (types.CoverageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return types.CoverageSummary{TotalGoals: 5, Completion: 0.4}, m.err
}

func (m *mockProgress) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestGenerationCoordinator_RunOnceRecordsProgress(t *testing.T) {
	// Given: a runner that succeeds
	runner := &mockGenerationRunner{}
	progress := &mockProgress{}
	coord := NewGenerationCoordinator(runner, progress, time.Hour, pipeline.RunOptions{})

	// When: one pass executes
	report, err := coord.RunOnce(context.Background(), pipeline.RunOptions{Strategy: "depth_first", Goals: 4})
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// Then: the report is kept and progress is persisted
	if report.Inserted != 3 || coord.LastReport() != report {
		t.Errorf("report = %+v", report)
	}
	if runner.lastOpts.Goals != 4 || runner.lastOpts.Strategy != "depth_first" {
		t.Errorf("opts = %+v", runner.lastOpts)
	}
	if progress.getCalls() != 1 {
		t.Errorf("progress calls = %d, want 1", progress.getCalls())
	}
}

func TestGenerationCoordinator_DryRunSkipsProgress(t *testing.T) {
	progress := &mockProgress{}
	coord := NewGenerationCoordinator(&mockGenerationRunner{}, progress, time.Hour, pipeline.RunOptions{})

	if _, err := coord.RunOnce(context.Background(), pipeline.RunOptions{DryRun: true}); err != nil {
		t.Fatal(err)
	}
	if progress.getCalls() != 0 {
		t.Errorf("progress calls = %d, want 0", progress.getCalls())
	}
}

func TestGenerationCoordinator_ProgressFailureIsNotFatal(t *testing.T) {
	progress := &mockProgress{err: errors.New("disk full")}
	coord := NewGenerationCoordinator(&mockGenerationRunner{}, progress, time.Hour, pipeline.RunOptions{})

	if _, err := coord.RunOnce(context.Background(), pipeline.RunOptions{}); err != nil {
		t.Errorf("RunOnce() error = %v, want nil", err)
	}
}

func TestGenerationCoordinator_RunnerError(t *testing.T) {
	runner := &mockGenerationRunner{err: errors.New("select goals: db locked")}
	progress := &mockProgress{}
	coord := NewGenerationCoordinator(runner, progress, time.Hour, pipeline.RunOptions{})

	if _, err := coord.RunOnce(context.Background(), pipeline.RunOptions{}); err == nil {
		t.Error("expected error")
	}
	if progress.getCalls() != 0 {
		t.Error("progress should not be recorded after a failed pass")
	}
}

func TestGenerationCoordinator_RefusesConcurrentPass(t *testing.T) {
	runner := &mockGenerationRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	coord := NewGenerationCoordinator(runner, nil, time.Hour, pipeline.RunOptions{})

	done := make(chan struct{})
	go func() {
		_, _ = coord.RunOnce(context.Background(), pipeline.RunOptions{})
		close(done)
	}()
	<-runner.started

	if _, err := coord.RunOnce(context.Background(), pipeline.RunOptions{}); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
	close(runner.block)
	<-done

	// A new pass is accepted once the first finished
	if _, err := coord.RunOnce(context.Background(), pipeline.RunOptions{}); err != nil {
		t.Errorf("RunOnce() after completion error = %v", err)
	}
}

func TestGenerationCoordinator_RunsOnInterval(t *testing.T) {
	runner := &mockGenerationRunner{}
	coord := NewGenerationCoordinator(runner, nil, 20*time.Millisecond, pipeline.RunOptions{Goals: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.getCalls() < 2 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for interval passes")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop on context cancellation")
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.lastOpts.Goals != 2 {
		t.Errorf("configured options not passed: %+v", runner.lastOpts)
	}
}
