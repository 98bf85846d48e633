// Package audit records structured data-quality events: mapping fallbacks,
// credibility rejections, validation and persistence failures, and budget
// halts. Events are never swallowed; recording failures are logged instead of
// being returned so that auditing cannot break the pipeline it observes.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies an audit event.
type Kind string

const (
	KindValidationError     Kind = "validation_error"
	KindMappingFallback     Kind = "mapping_fallback"
	KindCredibilityRejected Kind = "credibility_rejected"
	KindPersistenceError    Kind = "persistence_error"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindCheckerUnavailable  Kind = "checker_unavailable"
)

// Event is a single structured audit record.
type Event struct {
	ID        string    `json:"id,omitempty"`
	Kind      Kind      `json:"kind"`
	Category  string    `json:"category,omitempty"`
	Field     string    `json:"field,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is an aggregated count of events sharing kind, category and field.
type Summary struct {
	Kind     Kind   `json:"kind"`
	Category string `json:"category,omitempty"`
	Field    string `json:"field,omitempty"`
	Count    int64  `json:"count"`
}

// Recorder accepts audit events.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Sink persists audit events. Implemented by store.SQLiteStore.
type Sink interface {
	RecordAuditEvent(ctx context.Context, e Event) error
}

// StoreRecorder logs every event and persists it through a Sink.
type StoreRecorder struct {
	sink Sink
}

// NewStoreRecorder creates a recorder backed by the given sink.
func NewStoreRecorder(sink Sink) *StoreRecorder {
	return &StoreRecorder{sink: sink}
}

// Record logs the event and writes it to the sink.
func (r *StoreRecorder) Record(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	slog.Warn("audit event",
		"component", "audit",
		"kind", string(e.Kind),
		"category", e.Category,
		"field", e.Field,
		"subject", e.Subject,
		"detail", e.Detail,
	)

	if err := r.sink.RecordAuditEvent(ctx, e); err != nil {
		slog.Error("failed to persist audit event",
			"component", "audit",
			"kind", string(e.Kind),
			"error", err,
		)
	}
}

// Memory keeps events in memory. Used by tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Record appends the event.
func (m *Memory) Record(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of all recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event{}, m.events...)
}

// Count returns the number of recorded events of the given kind.
func (m *Memory) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, e := range m.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Nop discards events.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Event) {}
