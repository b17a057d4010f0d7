package scan

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/domhtml"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/orchestrator"
	"github.com/use-agent/gallerydiscover/port"
)

const page1HTML = `<html><body>
<div class="gallery">
	<div class="item"><img src="/a1.jpg" width="200" height="200"></div>
	<div class="item"><img src="/a2.jpg" width="200" height="200"></div>
	<div class="item"><img src="/a3.jpg" width="200" height="200"></div>
	<div class="item"><img src="/a4.jpg" width="200" height="200"></div>
</div>
<link rel="next" href="https://example.com/gallery/page2">
</body></html>`

const page2HTML = `<html><body>
<div class="gallery">
	<div class="item"><img src="/b1.jpg" width="200" height="200"></div>
	<div class="item"><img src="/b2.jpg" width="200" height="200"></div>
	<div class="item"><img src="/b3.jpg" width="200" height="200"></div>
	<div class="item"><img src="/b4.jpg" width="200" height="200"></div>
</div>
</body></html>`

// fakeNavigator serves a fixed set of pages. Its Click is a no-op that
// reports success; the test pages carry only URL-based pagination
// (RelNext), so no click target is chosen.
type fakeNavigator struct {
	pages map[string]string
}

func (f *fakeNavigator) Click(ctx context.Context, h port.ElementHandle) error {
	return nil
}

func (f *fakeNavigator) Load(ctx context.Context, url string) (*port.NavigateResult, error) {
	html, ok := f.pages[url]
	if !ok {
		html = `<html><body>not found</body></html>`
	}
	adapter, err := domhtml.New(html, url)
	if err != nil {
		return nil, err
	}
	return &port.NavigateResult{Adapter: adapter, FinalURL: url}, nil
}

// fakeClock compresses every requested delay down to a few milliseconds so
// pagination/retry loops run at test speed while still actually yielding,
// which keeps ordering against concurrent Dispatch calls meaningful.
type fakeClock struct{}

func (fakeClock) Now() time.Time { return time.Time{} }
func (fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	wait := 2 * time.Millisecond
	if d <= 0 {
		wait = 0
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

type fakeExportSink struct {
	writes map[string][]byte
}

func (f *fakeExportSink) Write(ctx context.Context, filename, mime string, data []byte) error {
	if f.writes == nil {
		f.writes = make(map[string][]byte)
	}
	f.writes[filename] = data
	return nil
}

func TestScanCollectsImagesAcrossPagination(t *testing.T) {
	cfg := config.Load()
	c := canon.New(cfg.Collector.StripQuery, cfg.Collector.ImageExtensions)
	nav := &fakeNavigator{pages: map[string]string{
		"https://example.com/gallery":       page1HTML,
		"https://example.com/gallery/page2": page2HTML,
	}}
	open := func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error) {
		res, err := nav.Load(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return res.Adapter, nav, nil
	}
	sink := &fakeExportSink{}
	s := New(cfg, c, fakeClock{}, open, sink)

	events, cancel := s.Router().Subscribe("test", nil, 32)
	defer cancel()

	env := s.Router().Dispatch(context.Background(), "", orchestrator.ActionScanStart, ScanStartRequest{URL: "https://example.com/gallery"})
	if !env.OK {
		t.Fatalf("Dispatch SCAN_START: %v", env.Error)
	}
	scanID := env.Data.(ScanStartResponse).ScanID

	deadline := time.After(5 * time.Second)
	stepped := false
	for !stepped {
		select {
		case b := <-events:
			if b.Event == orchestrator.EventPaginationProgress {
				stepped = true
			}
		case <-deadline:
			t.Fatal("scan did not report a pagination step in time")
		}
	}
	// The first PAGINATION_PROGRESS is the step to page 2; give the
	// collectFrom that follows it a moment to land.
	time.Sleep(50 * time.Millisecond)

	if env := s.Router().Dispatch(context.Background(), "", orchestrator.ActionExportData, ExportDataRequest{ScanID: scanID}); !env.OK {
		t.Fatalf("Dispatch EXPORT_DATA: %v", env.Error)
	}

	var snap ScanSnapshot
	found := false
	for filename, data := range sink.writes {
		if err := json.Unmarshal(data, &snap); err != nil {
			t.Fatalf("unmarshal export %s: %v", filename, err)
		}
		found = true
	}
	if !found {
		t.Fatal("expected EXPORT_DATA to write a snapshot")
	}
	if len(snap.Records) < 8 {
		t.Errorf("expected records from both pages, got %d", len(snap.Records))
	}
}

func TestRetrySubmitRejectsDuplicateAndCancelReportsUnknown(t *testing.T) {
	cfg := config.Load()
	c := canon.New(cfg.Collector.StripQuery, cfg.Collector.ImageExtensions)
	open := func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error) {
		adapter, err := domhtml.New(page1HTML, url)
		return adapter, &fakeNavigator{}, err
	}
	s := New(cfg, c, fakeClock{}, open, nil)

	req := RetrySubmitRequest{
		TaskID:    "diag-1",
		Operation: models.Operation{Name: "noop-not-registered"},
		Category:  models.CategoryNetwork,
	}
	if env := s.Router().Dispatch(context.Background(), "", orchestrator.ActionRetrySubmit, req); !env.OK {
		t.Fatalf("Dispatch RETRY_SUBMIT: %v", env.Error)
	}
	if env := s.Router().Dispatch(context.Background(), "", orchestrator.ActionRetrySubmit, req); env.OK {
		t.Error("expected a duplicate task_id resubmission to fail")
	}

	cancelEnv := s.Router().Dispatch(context.Background(), "", orchestrator.ActionRetryCancel, "no-such-task")
	if !cancelEnv.OK {
		t.Fatalf("Dispatch RETRY_CANCEL: %v", cancelEnv.Error)
	}
	if cancelled, _ := cancelEnv.Data.(bool); cancelled != false {
		t.Error("expected RETRY_CANCEL on an unknown task_id to report false")
	}
}
