package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/store"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
	"github.com/oklog/ulid/v2"
)

// Source supplies the data an audit report is built from.
type Source interface {
	ListAuditEvents(ctx context.Context, since time.Time, limit int) ([]audit.Event, error)
	AuditSummary(ctx context.Context, since time.Time) ([]audit.Summary, error)
	LatestCoverageSummary(ctx context.Context) (*types.CoverageSummary, error)
}

// Report is one exported audit window.
type Report struct {
	ID          string                 `json:"id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Since       time.Time              `json:"since"`
	Until       time.Time              `json:"until"`
	Summary     []audit.Summary        `json:"summary"`
	Events      []audit.Event          `json:"events"`
	Coverage    *types.CoverageSummary `json:"coverage,omitempty"`
}

// Result describes a published report.
type Result struct {
	ReportID  string    `json:"report_id"`
	Key       string    `json:"key"`
	Events    int       `json:"events"`
	Uploaded  bool      `json:"uploaded"`
	URL       string    `json:"url,omitempty"`
	URLExpiry time.Time `json:"url_expiry,omitempty"`
}

// Exporter builds audit reports and hands them to an Uploader.
type Exporter struct {
	source   Source
	uploader Uploader
	prefix   string
	now      func() time.Time
}

// NewExporter creates an Exporter. A nil uploader means local-only.
func NewExporter(source Source, uploader Uploader, prefix string) *Exporter {
	if uploader == nil {
		uploader = &NoopUploader{}
	}
	return &Exporter{
		source:   source,
		uploader: uploader,
		prefix:   prefix,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Build assembles the report for events in [since, until).
func (e *Exporter) Build(ctx context.Context, since, until time.Time) (*Report, error) {
	events, err := e.source.ListAuditEvents(ctx, since, 0)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}
	inWindow := events[:0]
	for _, ev := range events {
		if ev.CreatedAt.Before(until) {
			inWindow = append(inWindow, ev)
		}
	}

	summary, err := e.source.AuditSummary(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	cov, err := e.source.LatestCoverageSummary(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("build report: %w", err)
	}

	return &Report{
		ID:          ulid.Make().String(),
		GeneratedAt: e.now(),
		Since:       since.UTC(),
		Until:       until.UTC(),
		Summary:     summary,
		Events:      inWindow,
		Coverage:    cov,
	}, nil
}

// Write encodes r as indented JSON.
func Write(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// ObjectKey returns the object key for a report.
// Convention: {prefix}/{yyyy}/{mm}/{dd}/audit-{id}.json
func ObjectKey(prefix string, r *Report) string {
	return path.Join(prefix, r.Until.Format("2006/01/02"), "audit-"+r.ID+".json")
}

// Export builds the report for the window and uploads it. Without
// configured storage the report is still built and Uploaded is false.
func (e *Exporter) Export(ctx context.Context, since, until time.Time) (*Result, error) {
	r, err := e.Build(ctx, since, until)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "wwfm-audit-*.json")
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := Write(f, r); err != nil {
		f.Close()
		return nil, fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	key := ObjectKey(e.prefix, r)
	res := &Result{ReportID: r.ID, Key: key, Events: len(r.Events)}

	if err := e.uploader.Upload(ctx, key, f.Name()); err != nil {
		return res, err
	}

	url, expiry, err := e.uploader.PresignedURL(ctx, key)
	switch {
	case errors.Is(err, ErrNotConfigured):
		return res, nil
	case err != nil:
		// Object is stored; the link is a convenience
		slog.Warn("pre-signed URL generation failed",
			"component", "export",
			"key", key,
			"error", err,
		)
		res.Uploaded = true
		return res, nil
	}
	res.Uploaded = true
	res.URL = url
	res.URLExpiry = expiry
	return res, nil
}
