package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"car-report/internal/metrics"
	"car-report/internal/models"
	"car-report/internal/normalize"
	"car-report/internal/reportparse"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	statuses []models.ReportStatus
	summary  reportparse.Summary
	record   []byte
	degraded bool
	html     string
	failed   string

	updateErr   error
	completeErr error
}

func (s *fakeStore) UpdateStatus(_ context.Context, _ uuid.UUID, status models.ReportStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) Complete(_ context.Context, _ uuid.UUID, summary reportparse.Summary, record []byte, degraded bool, html string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.statuses = append(s.statuses, models.ReportStatusCompleted)
	s.summary, s.record, s.degraded, s.html = summary, record, degraded, html
	return nil
}

func (s *fakeStore) Fail(_ context.Context, _ uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, models.ReportStatusFailed)
	s.failed = reason
	return nil
}

type fakeObjects map[string][]byte

func (o fakeObjects) DownloadFile(_ context.Context, _, objectName string) ([]byte, error) {
	data, ok := o[objectName]
	if !ok {
		return nil, errors.New("object not found")
	}
	return data, nil
}

type fakeCache struct {
	deleted []string
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.deleted = append(c.deleted, keys...)
	return nil
}

type fakeAnalyzer struct {
	response string
	err      error
	got      []models.ImagePayload
}

func (a *fakeAnalyzer) Analyze(_ context.Context, payloads []models.ImagePayload) (string, error) {
	a.got = payloads
	return a.response, a.err
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	store    *fakeStore
	cache    *fakeCache
	analyzer *fakeAnalyzer
	proc     *Processor
	task     models.TaskMessage
}

func newFixture(t *testing.T, response string, objects fakeObjects) *fixture {
	t.Helper()
	n, err := normalize.New(normalize.Options{MaxSide: 200, MaxBytes: 1 << 20, SplitAspectRatio: 3, ChunkHeight: 100, Concurrency: 2})
	require.NoError(t, err)

	f := &fixture{
		store:    &fakeStore{},
		cache:    &fakeCache{},
		analyzer: &fakeAnalyzer{response: response},
	}
	f.proc = NewProcessor(f.store, objects, f.cache, n, f.analyzer, metrics.New(prometheus.NewRegistry()), "https://cdn.example.com/logo.png")

	keys := make([]string, 0, len(objects))
	for k := range objects {
		keys = append(keys, k)
	}
	f.task = models.TaskMessage{
		ReportID:   uuid.NewString(),
		BucketName: "report-images",
		ObjectKeys: keys,
	}
	return f
}

func TestProcessReportCompletes(t *testing.T) {
	f := newFixture(t, "```json\n{\"vin\":\"LGXCE4CB5N0123456\",\"brand\":\"BYD\",\"model\":\"Han\",\"rating\":4.5}\n```",
		fakeObjects{"tall.png": pngBytes(t, 50, 350)})
	f.task.Labels = []string{"scroll.png"}

	require.NoError(t, f.proc.ProcessReport(context.Background(), f.task))

	assert.Equal(t, []models.ReportStatus{models.ReportStatusProcessing, models.ReportStatusCompleted}, f.store.statuses)
	assert.Equal(t, reportparse.Summary{VIN: "LGXCE4CB5N0123456", Brand: "BYD", Model: "Han", Rating: "4.5"}, f.store.summary)
	assert.False(t, f.store.degraded)
	assert.JSONEq(t, `{"vin":"LGXCE4CB5N0123456","brand":"BYD","model":"Han","rating":4.5}`, string(f.store.record))
	assert.Contains(t, f.store.html, "BYD Han")
	assert.Contains(t, f.store.html, "logo.png")
	assert.Equal(t, []string{"report:" + f.task.ReportID}, f.cache.deleted)

	require.Len(t, f.analyzer.got, 4)
	assert.Equal(t, "scroll.png (part 1/4)", f.analyzer.got[0].Label)
	assert.Equal(t, "scroll.png (part 4/4)", f.analyzer.got[3].Label)
}

func TestProcessReportRepairsTruncatedResponse(t *testing.T) {
	f := newFixture(t, `{"vin":"ABC","brand":"Geely","conclusion":{"recommendation":"Che`,
		fakeObjects{"a.png": pngBytes(t, 40, 40)})

	require.NoError(t, f.proc.ProcessReport(context.Background(), f.task))

	assert.False(t, f.store.degraded)
	assert.Equal(t, "ABC", f.store.summary.VIN)
	assert.JSONEq(t, `{"vin":"ABC","brand":"Geely","conclusion":{}}`, string(f.store.record))
}

func TestProcessReportStoresDegradedRecord(t *testing.T) {
	f := newFixture(t, "I cannot read these images.", fakeObjects{"a.png": pngBytes(t, 40, 40)})

	require.NoError(t, f.proc.ProcessReport(context.Background(), f.task))

	assert.Equal(t, models.ReportStatusCompleted, f.store.statuses[len(f.store.statuses)-1])
	assert.True(t, f.store.degraded)
	assert.Equal(t, reportparse.UnknownVIN, f.store.summary.VIN)
	assert.Equal(t, reportparse.FailedBrand, f.store.summary.Brand)
	assert.Contains(t, f.store.html, "I cannot read these images.")

	rec, err := reportparse.RecordFromJSON(f.store.record, f.store.degraded)
	require.NoError(t, err)
	assert.Equal(t, "I cannot read these images.", rec.RawText())
}

func TestProcessReportSkipsUndecodableFiles(t *testing.T) {
	f := newFixture(t, `{"vin":"ABC"}`, fakeObjects{
		"good.png":   pngBytes(t, 40, 40),
		"broken.jpg": []byte("not an image"),
	})

	require.NoError(t, f.proc.ProcessReport(context.Background(), f.task))
	require.Len(t, f.analyzer.got, 1)
	assert.Equal(t, "good.png", f.analyzer.got[0].Label)
}

func TestProcessReportFailures(t *testing.T) {
	tests := []struct {
		name        string
		objects     fakeObjects
		extraKey    string
		analyzerErr error
		updateErr   error
		completeErr error
		wantReason  string
		wantAnalyze bool
	}{
		{
			name:       "no decodable image",
			objects:    fakeObjects{"broken.jpg": []byte("garbage")},
			wantReason: "could be decoded",
		},
		{
			name:       "download error",
			objects:    fakeObjects{"a.png": pngBytes(t, 10, 10)},
			extraKey:   "missing.png",
			wantReason: "failed to download image",
		},
		{
			name:        "model error",
			objects:     fakeObjects{"a.png": pngBytes(t, 10, 10)},
			analyzerErr: errors.New("rate limited"),
			wantReason:  "rate limited",
			wantAnalyze: true,
		},
		{
			name:        "store error on completion",
			objects:     fakeObjects{"a.png": pngBytes(t, 10, 10)},
			completeErr: errors.New("db down"),
			wantReason:  "failed to store report: db down",
			wantAnalyze: true,
		},
		{
			name:       "store error on start",
			objects:    fakeObjects{"a.png": pngBytes(t, 10, 10)},
			updateErr:  errors.New("db down"),
			wantReason: "failed to update status to processing: db down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "", tt.objects)
			f.analyzer.err = tt.analyzerErr
			f.store.updateErr = tt.updateErr
			f.store.completeErr = tt.completeErr
			if tt.extraKey != "" {
				f.task.ObjectKeys = append(f.task.ObjectKeys, tt.extraKey)
			}

			err := f.proc.ProcessReport(context.Background(), f.task)
			require.Error(t, err)

			require.NotEmpty(t, f.store.statuses)
			assert.Equal(t, models.ReportStatusFailed, f.store.statuses[len(f.store.statuses)-1])
			assert.Contains(t, f.store.failed, tt.wantReason)
			assert.Equal(t, tt.wantAnalyze, f.analyzer.got != nil)
			assert.Equal(t, []string{"report:" + f.task.ReportID}, f.cache.deleted)
		})
	}
}

func TestProcessReportRejectsInvalidID(t *testing.T) {
	f := newFixture(t, "", fakeObjects{})
	f.task.ReportID = "not-a-uuid"

	require.Error(t, f.proc.ProcessReport(context.Background(), f.task))
	assert.Empty(t, f.store.statuses)
}
