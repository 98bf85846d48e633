package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jandy1990/wwfm-platform-sub006/internal/audit"
	"github.com/jandy1990/wwfm-platform-sub006/internal/config"
	"github.com/jandy1990/wwfm-platform-sub006/internal/store"
	"github.com/jandy1990/wwfm-platform-sub006/internal/types"
)

// --- NewUploader factory tests ---

func TestNewUploader_EmptyBucket_ReturnsNoopUploader(t *testing.T) {
	u, err := NewUploader(config.ExportConfig{})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	if _, ok := u.(*NoopUploader); !ok {
		t.Errorf("expected *NoopUploader, got %T", u)
	}
}

func TestNewUploader_WithBucket_ReturnsS3Uploader(t *testing.T) {
	u, err := NewUploader(config.ExportConfig{
		Bucket:    "wwfm-audit",
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("NewUploader() error = %v", err)
	}
	s3u, ok := u.(*S3Uploader)
	if !ok {
		t.Fatalf("expected *S3Uploader, got %T", u)
	}
	if s3u.bucket != "wwfm-audit" {
		t.Errorf("bucket = %q", s3u.bucket)
	}
	// Zero expiry falls back to 15 minutes
	if s3u.urlExpiry != 15*time.Minute {
		t.Errorf("urlExpiry = %v, want 15m", s3u.urlExpiry)
	}
}

func TestNoopUploader(t *testing.T) {
	u := &NoopUploader{}
	if err := u.Upload(context.Background(), "k", "/nowhere"); err != nil {
		t.Errorf("Upload() error = %v", err)
	}
	if _, _, err := u.PresignedURL(context.Background(), "k"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("PresignedURL() error = %v, want ErrNotConfigured", err)
	}
}

// --- S3Uploader with mock client ---

type mockS3Client struct {
	mu          sync.Mutex
	uploadErr   error
	presignErr  error
	lastBucket  string
	lastKey     string
	lastType    string
	lastPayload []byte
}

func (m *mockS3Client) FPutObject(ctx context.Context, bucket, objectName, filePath, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBucket = bucket
	m.lastKey = objectName
	m.lastType = contentType
	// Capture the payload before the caller removes the temp file
	m.lastPayload, _ = os.ReadFile(filePath)
	return m.uploadErr
}

func (m *mockS3Client) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	if m.presignErr != nil {
		return nil, m.presignErr
	}
	return url.Parse("https://s3.example.com/" + bucket + "/" + objectName + "?sig=abc")
}

func TestS3Uploader_UploadError(t *testing.T) {
	mock := &mockS3Client{uploadErr: errors.New("network timeout")}
	u := &S3Uploader{client: mock, bucket: "b", urlExpiry: time.Minute}

	err := u.Upload(context.Background(), "k", "/tmp/x.json")
	if !errors.Is(err, mock.uploadErr) {
		t.Errorf("expected wrapped network timeout error, got %v", err)
	}
}

// --- Exporter ---

type mockSource struct {
	events   []audit.Event
	summary  []audit.Summary
	coverage *types.CoverageSummary
	err      error
}

func (m *mockSource) ListAuditEvents(ctx context.Context, since time.Time, limit int) ([]audit.Event, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []audit.Event
	for _, e := range m.events {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockSource) AuditSummary(ctx context.Context, since time.Time) ([]audit.Summary, error) {
	return m.summary, nil
}

func (m *mockSource) LatestCoverageSummary(ctx context.Context) (*types.CoverageSummary, error) {
	if m.coverage == nil {
		return nil, store.ErrNotFound
	}
	return m.coverage, nil
}

var day = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newSource() *mockSource {
	return &mockSource{
		events: []audit.Event{
			{ID: "e1", Kind: audit.KindMappingFallback, Field: "cost", CreatedAt: day.Add(-time.Hour)},
			{ID: "e2", Kind: audit.KindCredibilityRejected, Subject: "Magic beans", CreatedAt: day.Add(2 * time.Hour)},
			{ID: "e3", Kind: audit.KindValidationError, CreatedAt: day.Add(25 * time.Hour)},
		},
		summary: []audit.Summary{{Kind: audit.KindCredibilityRejected, Count: 1}},
	}
}

func TestExporter_BuildFiltersWindow(t *testing.T) {
	// Given: events before, inside and after the window
	e := NewExporter(newSource(), nil, "audit")

	// When: building the report for one day
	r, err := e.Build(context.Background(), day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Then: only the event inside the window is included
	if len(r.Events) != 1 || r.Events[0].ID != "e2" {
		t.Errorf("events = %+v", r.Events)
	}
	if r.Coverage != nil {
		t.Errorf("coverage should be nil without a saved summary")
	}
	if r.ID == "" {
		t.Error("report id should be set")
	}
}

func TestExporter_ExportUploadsJSON(t *testing.T) {
	src := newSource()
	src.coverage = &types.CoverageSummary{TotalGoals: 4, Completion: 0.5}
	mock := &mockS3Client{}
	e := NewExporter(src, &S3Uploader{client: mock, bucket: "wwfm-audit", urlExpiry: time.Minute}, "audit")

	res, err := e.Export(context.Background(), day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !res.Uploaded || res.URL == "" || res.Events != 1 {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasPrefix(mock.lastKey, "audit/2026/03/02/audit-") || !strings.HasSuffix(mock.lastKey, ".json") {
		t.Errorf("key = %q", mock.lastKey)
	}
	if mock.lastType != "application/json" {
		t.Errorf("content type = %q", mock.lastType)
	}

	var got Report
	if err := json.Unmarshal(mock.lastPayload, &got); err != nil {
		t.Fatalf("uploaded payload is not a report: %v", err)
	}
	if got.Coverage == nil || got.Coverage.TotalGoals != 4 {
		t.Errorf("coverage = %+v", got.Coverage)
	}
}

func TestExporter_ExportWithoutStorage(t *testing.T) {
	e := NewExporter(newSource(), &NoopUploader{}, "audit")

	res, err := e.Export(context.Background(), day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Uploaded || res.URL != "" {
		t.Errorf("result = %+v, want not uploaded", res)
	}
}

func TestExporter_PresignFailureStillUploaded(t *testing.T) {
	mock := &mockS3Client{presignErr: errors.New("clock skew")}
	e := NewExporter(newSource(), &S3Uploader{client: mock, bucket: "b", urlExpiry: time.Minute}, "audit")

	res, err := e.Export(context.Background(), day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !res.Uploaded || res.URL != "" {
		t.Errorf("result = %+v", res)
	}
}

func TestExporter_Errors(t *testing.T) {
	src := &mockSource{err: errors.New("db locked")}
	if _, err := NewExporter(src, nil, "audit").Export(context.Background(), day, day.Add(time.Hour)); err == nil {
		t.Error("expected source error")
	}

	mock := &mockS3Client{uploadErr: errors.New("denied")}
	res, err := NewExporter(newSource(), &S3Uploader{client: mock, bucket: "b"}, "audit").Export(context.Background(), day, day.Add(time.Hour))
	if !errors.Is(err, mock.uploadErr) {
		t.Errorf("err = %v, want upload error", err)
	}
	if res == nil || res.Uploaded {
		t.Errorf("result = %+v", res)
	}
}

func TestWrite_IndentedJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, &Report{ID: "r1"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "\n  \"id\": \"r1\"") {
		t.Errorf("output = %s", buf.String())
	}
}
