package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/export"
)

// mockAuditExporter implements AuditExporter for testing.
type mockAuditExporter struct {
	mu     sync.Mutex
	calls  int
	since  time.Time
	until  time.Time
	err    error
	called chan struct{}
}

func (m *mockAuditExporter) Export(ctx context.Context, since, until time.Time) (*export.Result, error) {
	m.mu.Lock()
	m.calls++
	m.since, m.until = since, until
	err, called := m.err, m.called
	m.mu.Unlock()

	if called != nil {
		select {
		case called <- struct{}{}:
		default:
		}
	}
	if err != nil {
		return nil, err
	}
	return &export.Result{Key: "audit/x.json", Events: 2, Uploaded: true}, nil
}

func TestExportCoordinator_ExportsTrailingWindow(t *testing.T) {
	// Given: a fixed clock and a 6h window
	exp := &mockAuditExporter{}
	coord := NewExportCoordinator(exp, time.Hour, 6*time.Hour)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coord.now = func() time.Time { return now }

	// When: one cycle runs
	if !coord.exportWindow(context.Background()) {
		t.Fatal("exportWindow() = false, want true")
	}

	// Then: the window ends now and spans 6h
	if !exp.until.Equal(now) || !exp.since.Equal(now.Add(-6*time.Hour)) {
		t.Errorf("window = %v..%v", exp.since, exp.until)
	}
}

func TestExportCoordinator_WindowDefaultsToInterval(t *testing.T) {
	exp := &mockAuditExporter{}
	coord := NewExportCoordinator(exp, 2*time.Hour, 0)
	if coord.window != 2*time.Hour {
		t.Errorf("window = %v, want 2h", coord.window)
	}
}

func TestExportCoordinator_FailureIsNotFatal(t *testing.T) {
	exp := &mockAuditExporter{err: errors.New("bucket missing")}
	coord := NewExportCoordinator(exp, time.Hour, time.Hour)

	if coord.exportWindow(context.Background()) {
		t.Error("exportWindow() = true, want false on error")
	}
}

func TestExportCoordinator_RunsOnIntervalAndStops(t *testing.T) {
	exp := &mockAuditExporter{called: make(chan struct{}, 10)}
	coord := NewExportCoordinator(exp, 10*time.Millisecond, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	select {
	case <-exp.called:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for export cycle")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coordinator did not stop on context cancellation")
	}
}
