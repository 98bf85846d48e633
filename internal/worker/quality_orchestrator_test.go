package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// mockQualityStore keeps pending items in memory.
type mockQualityStore struct {
	mu       sync.Mutex
	pending  []types.QualityItem
	applied  map[string]types.QualityStatus
	scores   map[string]float64
	runs     []types.QualityRun
	daySpent float64
	pendErr  error
}

func newMockQualityStore(n int) *mockQualityStore {
	m := &mockQualityStore{
		applied: make(map[string]types.QualityStatus),
		scores:  make(map[string]float64),
	}
	for i := 0; i < n; i++ {
		m.pending = append(m.pending, types.QualityItem{
			LinkID:        fmt.Sprintf("link-%02d", i),
			SolutionTitle: fmt.Sprintf("Solution %d", i),
			Category:      "apps_software",
		})
	}
	return m
}

func (m *mockQualityStore) PendingQualityItems(ctx context.Context, limit int) ([]types.QualityItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pendErr != nil {
		return nil, m.pendErr
	}
	var out []types.QualityItem
	for _, it := range m.pending {
		if _, done := m.applied[it.LinkID]; done {
			continue
		}
		out = append(out, it)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockQualityStore) CountPendingQuality(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending) - len(m.applied)), nil
}

func (m *mockQualityStore) ApplyQualityVerdict(ctx context.Context, linkID string, status types.QualityStatus, score float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied[linkID] = status
	m.scores[linkID] = score
	return nil
}

func (m *mockQualityStore) StartQualityRun(ctx context.Context) (*types.QualityRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &types.QualityRun{ID: fmt.Sprintf("run-%d", len(m.runs)+1), Status: "running", StartedAt: time.Now()}, nil
}

func (m *mockQualityStore) FinishQualityRun(ctx context.Context, run types.QualityRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockQualityStore) QualitySpendSince(ctx context.Context, since time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.daySpent, nil
}

func (m *mockQualityStore) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *mockQualityStore) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

// mockChecker returns a fixed verdict for every item.
type mockChecker struct {
	mu      sync.Mutex
	verdict types.Verdict
	scores  map[string]float64
	fixes   map[string]string
	cost    *float64
	err     error
	calls   int
	block   chan struct{}
	started chan struct{}
}

func (c *mockChecker) Check(ctx context.Context, items []types.QualityItem) (*types.QualityReport, error) {
	c.mu.Lock()
	c.calls++
	block, started := c.block, c.started
	c.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if c.err != nil {
		return nil, c.err
	}
	rep := &types.QualityReport{Cost: c.cost}
	for _, it := range items {
		rep.Verdicts = append(rep.Verdicts, types.QualityVerdict{
			LinkID:  it.LinkID,
			Verdict: c.verdict,
			Scores:  c.scores,
			Fixes:   c.fixes,
		})
	}
	return rep, nil
}

func (c *mockChecker) getCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type mockFixer struct {
	mu    sync.Mutex
	fixed []string
	err   error
}

func (f *mockFixer) ApplyFix(ctx context.Context, item types.QualityItem, fixes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.fixed = append(f.fixed, item.LinkID)
	return nil
}

func testQualityConfig() QualityConfig {
	return QualityConfig{
		BatchSize:          5,
		TriggerThreshold:   10,
		PollInterval:       10 * time.Millisecond,
		RunInterval:        time.Hour,
		ScoreThreshold:     7,
		MaxSpendPerRun:     1.0,
		MaxSpendPerDay:     5.0,
		EstimatedBatchCost: 0.25,
	}
}

func price(v float64) *float64 { return &v }

func newTestOrchestrator(t *testing.T, store QualityStore, checker QualityChecker, fixer Fixer, rec audit.Recorder, cfg QualityConfig) *QualityOrchestrator {
	t.Helper()
	o, err := NewQualityOrchestrator(store, checker, fixer, rec, cfg)
	if err != nil {
		t.Fatalf("NewQualityOrchestrator() error = %v", err)
	}
	return o
}

func TestNewQualityOrchestrator_RejectsZeroConfig(t *testing.T) {
	mutations := []func(*QualityConfig){
		func(c *QualityConfig) { c.BatchSize = 0 },
		func(c *QualityConfig) { c.TriggerThreshold = 0 },
		func(c *QualityConfig) { c.PollInterval = 0 },
		func(c *QualityConfig) { c.ScoreThreshold = 0 },
		func(c *QualityConfig) { c.MaxSpendPerRun = 0 },
		func(c *QualityConfig) { c.MaxSpendPerDay = -1 },
		func(c *QualityConfig) { c.EstimatedBatchCost = 0 },
	}
	for i, mutate := range mutations {
		cfg := testQualityConfig()
		mutate(&cfg)
		if _, err := NewQualityOrchestrator(newMockQualityStore(0), &mockChecker{}, &mockFixer{}, nil, cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("case %d: err = %v, want ErrInvalidConfig", i, err)
		}
	}
}

func TestRunOnce_DrainsQueue(t *testing.T) {
	// Given: 12 pending items and a generous budget
	store := newMockQualityStore(12)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"accuracy": 9, "completeness": 8}, cost: price(0.01)}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	// When: a run executes
	run, err := o.RunOnce(context.Background())

	// Then: every item passes and the run drains
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if run.Status != RunDrained || run.Batches != 3 || run.Items != 12 {
		t.Errorf("run = %+v", run)
	}
	if store.appliedCount() != 12 {
		t.Errorf("applied = %d, want 12", store.appliedCount())
	}
	if st := o.Status(); st.State != StateIdle || st.LastRun == nil {
		t.Errorf("status = %+v", st)
	}
}

func TestRunOnce_NeverExceedsRunBudget(t *testing.T) {
	// Given: each batch costs exactly the estimate, run budget fits 4 batches
	store := newMockQualityStore(100)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}}
	rec := &audit.Memory{}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, rec, testQualityConfig())

	run, err := o.RunOnce(context.Background())

	// Then: halted before the overage, not after
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
	if run.Spend > 1.0 {
		t.Errorf("spend %.2f exceeded run budget", run.Spend)
	}
	if run.Batches != 4 || checker.getCalls() != 4 {
		t.Errorf("batches = %d, calls = %d, want 4", run.Batches, checker.getCalls())
	}
	if run.Status != RunHalted || o.Status().State != StateHalted {
		t.Errorf("status = %s, state = %s", run.Status, o.Status().State)
	}
	if rec.Count(audit.KindBudgetExceeded) != 1 {
		t.Errorf("budget events = %d", rec.Count(audit.KindBudgetExceeded))
	}
	// Already applied verdicts are kept
	if store.appliedCount() != 20 {
		t.Errorf("applied = %d, want 20", store.appliedCount())
	}
}

func TestRunOnce_RespectsDayBudget(t *testing.T) {
	store := newMockQualityStore(100)
	store.daySpent = 4.6
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	run, err := o.RunOnce(context.Background())

	if !errors.Is(err, ErrBudgetExceeded) {
		t.Fatalf("err = %v", err)
	}
	if run.Batches != 1 {
		t.Errorf("batches = %d, want 1", run.Batches)
	}
	if 4.6+run.Spend > 5.0 {
		t.Errorf("day spend %.2f exceeded", 4.6+run.Spend)
	}
}

func TestRunOnce_UnknownCostUsesEstimate(t *testing.T) {
	store := newMockQualityStore(5)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	run, _ := o.RunOnce(context.Background())

	if run.Spend != 0.25 {
		t.Errorf("spend = %v, want batch estimate 0.25", run.Spend)
	}
}

func TestRunOnce_CheckerUnavailable(t *testing.T) {
	// Given: the checker fails
	store := newMockQualityStore(8)
	checker := &mockChecker{err: errors.New("503 service unavailable")}
	rec := &audit.Memory{}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, rec, testQualityConfig())

	run, err := o.RunOnce(context.Background())

	// Then: the run aborts and no verdicts are persisted
	if !errors.Is(err, ErrCheckerUnavailable) {
		t.Fatalf("err = %v, want ErrCheckerUnavailable", err)
	}
	if run.Status != RunAborted {
		t.Errorf("status = %s", run.Status)
	}
	if store.appliedCount() != 0 {
		t.Errorf("applied = %d, want 0", store.appliedCount())
	}
	if rec.Count(audit.KindCheckerUnavailable) != 1 {
		t.Error("expected checker_unavailable audit event")
	}
	if o.Status().State != StateIdle {
		t.Errorf("state = %s, want idle", o.Status().State)
	}
}

func TestRunOnce_PassBelowThresholdIsFail(t *testing.T) {
	store := newMockQualityStore(2)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"accuracy": 6, "completeness": 7}}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	if _, err := o.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	for id, st := range store.applied {
		if st != types.QualityFailed {
			t.Errorf("%s = %s, want failed", id, st)
		}
		if store.scores[id] != 6.5 {
			t.Errorf("%s score = %v, want 6.5", id, store.scores[id])
		}
	}
}

func TestRunOnce_FixAppliedThroughFixer(t *testing.T) {
	store := newMockQualityStore(3)
	checker := &mockChecker{verdict: types.VerdictFix, scores: map[string]float64{"a": 5}, fixes: map[string]string{"cost": "Free"}}
	fixer := &mockFixer{}
	o := newTestOrchestrator(t, store, checker, fixer, nil, testQualityConfig())

	if _, err := o.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(fixer.fixed) != 3 {
		t.Errorf("fixed = %v", fixer.fixed)
	}
	for id, st := range store.applied {
		if st != types.QualityFixed {
			t.Errorf("%s = %s, want fixed", id, st)
		}
	}
}

func TestRunOnce_FailedFixStoredAsFailed(t *testing.T) {
	store := newMockQualityStore(1)
	checker := &mockChecker{verdict: types.VerdictFix, fixes: map[string]string{"cost": "Free"}}
	o := newTestOrchestrator(t, store, checker, &mockFixer{err: errors.New("locked")}, nil, testQualityConfig())

	o.RunOnce(context.Background())

	if store.applied["link-00"] != types.QualityFailed {
		t.Errorf("status = %s, want failed", store.applied["link-00"])
	}
}

func TestRunOnce_SkippedItemsDoNotLoop(t *testing.T) {
	// Given: a checker that returns no verdicts
	store := newMockQualityStore(7)
	o := newTestOrchestrator(t, store, emptyChecker{}, &mockFixer{}, nil, testQualityConfig())

	run, err := o.RunOnce(context.Background())

	// Then: the run drains after visiting each item once
	if err != nil {
		t.Fatal(err)
	}
	if run.Batches != 2 || run.Items != 7 || run.Status != RunDrained {
		t.Errorf("run = %+v", run)
	}
	if store.appliedCount() != 0 {
		t.Errorf("applied = %d, want 0", store.appliedCount())
	}
}

type emptyChecker struct{}

func (emptyChecker) Check(ctx context.Context, items []types.QualityItem) (*types.QualityReport, error) {
	zero := 0.0
	return &types.QualityReport{Cost: &zero}, nil
}

func TestRunOnce_AlreadyRunning(t *testing.T) {
	store := newMockQualityStore(10)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}, block: make(chan struct{}), started: make(chan struct{}, 1)}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	done := make(chan struct{})
	go func() {
		o.RunOnce(context.Background())
		close(done)
	}()
	<-checker.started

	if _, err := o.RunOnce(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("err = %v, want ErrAlreadyRunning", err)
	}
	close(checker.block)
	<-done
}

func TestStop_FinishesInFlightBatch(t *testing.T) {
	// Given: a run blocked inside its first batch
	store := newMockQualityStore(20)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}, cost: price(0.01), block: make(chan struct{}), started: make(chan struct{}, 1)}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	result := make(chan types.QualityRun, 1)
	go func() {
		run, _ := o.RunOnce(context.Background())
		result <- run
	}()
	<-checker.started

	// When: Stop is called mid-batch
	o.Stop()
	close(checker.block)

	// Then: the in-flight batch completes and no further batch starts
	select {
	case run := <-result:
		if run.Status != RunStopped || run.Batches != 1 {
			t.Errorf("run = %+v, want stopped after 1 batch", run)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	if store.appliedCount() != 5 {
		t.Errorf("applied = %d, want 5", store.appliedCount())
	}
	if o.Status().State != StateIdle {
		t.Errorf("state = %s, want idle", o.Status().State)
	}
}

func TestRun_TriggerThresholdStartsRun(t *testing.T) {
	// Given: pending count at the trigger threshold
	store := newMockQualityStore(10)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}, cost: price(0.01)}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	// Then: a run starts on poll and drains the queue
	deadline := time.After(2 * time.Second)
	for store.appliedCount() < 10 {
		select {
		case <-deadline:
			t.Fatalf("applied = %d, want 10", store.appliedCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRun_BelowThresholdWaitsForTrigger(t *testing.T) {
	store := newMockQualityStore(3)
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}, cost: price(0.01)}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, nil, testQualityConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	// Then: nothing runs below the threshold
	time.Sleep(50 * time.Millisecond)
	if checker.getCalls() != 0 {
		t.Fatalf("calls = %d before trigger", checker.getCalls())
	}

	// When: triggered manually
	o.Trigger()
	deadline := time.After(2 * time.Second)
	for store.appliedCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("applied = %d, want 3", store.appliedCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	o := newTestOrchestrator(t, newMockQualityStore(0), &mockChecker{}, &mockFixer{}, nil, testQualityConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestRun_HaltedSkipsThresholdUntilTriggered(t *testing.T) {
	// Given: the day budget is spent and the queue is above the threshold
	store := newMockQualityStore(20)
	store.daySpent = 5.0
	checker := &mockChecker{verdict: types.VerdictPass, scores: map[string]float64{"a": 9}}
	rec := &audit.Memory{}
	o := newTestOrchestrator(t, store, checker, &mockFixer{}, rec, testQualityConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	// When: many poll intervals pass
	time.Sleep(200 * time.Millisecond)

	// Then: only the first threshold run happened and it halted
	if n := store.runCount(); n != 1 {
		t.Fatalf("runs = %d, want 1", n)
	}
	if n := rec.Count(audit.KindBudgetExceeded); n != 1 {
		t.Errorf("budget_exceeded events = %d, want 1", n)
	}
	if o.Status().State != StateHalted {
		t.Errorf("state = %s, want halted", o.Status().State)
	}
	if checker.getCalls() != 0 {
		t.Errorf("checker calls = %d, want 0", checker.getCalls())
	}

	// When: an operator triggers a run
	o.Trigger()
	deadline := time.After(2 * time.Second)
	for store.runCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("runs = %d after trigger, want 2", store.runCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
