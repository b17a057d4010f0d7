// Package scan is the top-level composition root: it wires
// collector.Collector, pattern.Recognizer, score.Scorer,
// paginate.Detector/Engine, and retry.Manager into the
// fetch-discover-classify-paginate-export pipeline that SCAN_START kicks
// off, registering one orchestrator.Handler per action in §6's control
// surface. Grounded on the teacher's engine.Engine/Dispatcher composition
// (one small interface per concern, raced or sequenced by a thin owner)
// and cmd/purify/main.go's wiring of config into concrete components.
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/use-agent/gallerydiscover/cache"
	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/collector"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/orchestrator"
	"github.com/use-agent/gallerydiscover/paginate"
	"github.com/use-agent/gallerydiscover/pattern"
	"github.com/use-agent/gallerydiscover/port"
	"github.com/use-agent/gallerydiscover/retry"
	"github.com/use-agent/gallerydiscover/score"
)

// NavigatorOpener opens the first page of a scan, returning the document
// view and the Navigator that will drive every subsequent pagination
// step. Production wiring composes fetchhttp.NewOpener (tried first) over
// browser.Browser.Open (the fallback for pages that need rendering);
// tests supply a fake directly.
type NavigatorOpener func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error)

// Scanner owns every long-lived collaborator and the set of in-flight
// scan sessions.
type Scanner struct {
	cfg *config.Config

	collector  *collector.Collector
	recognizer *pattern.Recognizer
	canon      *canon.Canonicalizer
	retryMgr   *retry.Manager
	router     *orchestrator.Router
	clock      port.Clock
	openPage   NavigatorOpener
	exportSink port.ExportSink

	mu       sync.Mutex
	sessions map[string]*session
}

// New builds a Scanner. exportSink may be nil; EXPORT_DATA then reports a
// CategoryValidation error instead of silently dropping output.
func New(cfg *config.Config, c *canon.Canonicalizer, clock port.Clock, open NavigatorOpener, exportSink port.ExportSink) *Scanner {
	scorer := score.New(cfg.Scorer, cache.New(cfg.Cache.MaxEntries))
	s := &Scanner{
		cfg:        cfg,
		collector:  collector.New(c, cfg.Collector.MaxStyleProbe),
		recognizer: pattern.New(cfg.Pattern, scorer),
		canon:      c,
		retryMgr:   retry.New(cfg.Retry, clock, nil),
		router:     orchestrator.New(cfg.Router),
		clock:      clock,
		openPage:   open,
		exportSink: exportSink,
		sessions:   make(map[string]*session),
	}
	s.retryMgr.RegisterExecutor("scan.openPage", s.executeOpenPage)
	s.retryMgr.OnEvent = s.onRetryEvent
	s.registerHandlers()
	return s
}

// Router exposes the Scanner's Router so a host process (HTTP API, MCP
// server, CLI) can Dispatch actions and Subscribe to broadcasts.
func (s *Scanner) Router() *orchestrator.Router { return s.router }

func (s *Scanner) registerHandlers() {
	s.router.Handle(orchestrator.ActionScanStart, s.handleScanStart)
	s.router.Handle(orchestrator.ActionScanStop, s.handleScanStop)
	s.router.Handle(orchestrator.ActionPaginationStart, s.handlePaginationStart)
	s.router.Handle(orchestrator.ActionPaginationStop, s.handlePaginationStop)
	s.router.Handle(orchestrator.ActionPaginationDetect, s.handlePaginationDetect)
	s.router.Handle(orchestrator.ActionPaginationNavigateNext, s.handlePaginationNavigateNext)
	s.router.Handle(orchestrator.ActionPaginationReset, s.handlePaginationReset)
	s.router.Handle(orchestrator.ActionPaginationGetState, s.handlePaginationGetState)
	s.router.Handle(orchestrator.ActionRetrySubmit, s.handleRetrySubmit)
	s.router.Handle(orchestrator.ActionRetryCancel, s.handleRetryCancel)
	s.router.Handle(orchestrator.ActionExportData, s.handleExportData)
}

// ScanStartRequest is SCAN_START's payload.
type ScanStartRequest struct {
	URL string
}

// ScanStartResponse is SCAN_START's immediate reply; results stream via
// SCAN_COMPLETE/SCAN_ERROR broadcasts scoped to ScanID.
type ScanStartResponse struct {
	ScanID string
}

func (s *Scanner) handleScanStart(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(ScanStartRequest)
	if !ok {
		return nil, models.NewEngineError("SCAN_BAD_PAYLOAD", models.CategoryValidation, "SCAN_START requires a ScanStartRequest", nil)
	}

	scanID := uuid.NewString()
	sess := newSession(scanID, req.URL)
	s.mu.Lock()
	s.sessions[scanID] = sess
	s.mu.Unlock()

	s.router.Broadcast(orchestrator.EventScanStarted, ScanStartResponse{ScanID: scanID})
	go s.runScan(sess)
	return ScanStartResponse{ScanID: scanID}, nil
}

func (s *Scanner) handleScanStop(ctx context.Context, payload any) (any, error) {
	scanID, ok := payload.(string)
	if !ok {
		return nil, models.NewEngineError("SCAN_BAD_PAYLOAD", models.CategoryValidation, "SCAN_STOP requires a scan ID string", nil)
	}
	sess, ok := s.lookup(scanID)
	if !ok {
		return nil, models.NewEngineError("SCAN_NOT_FOUND", models.CategoryValidation, "unknown scan ID: "+scanID, nil)
	}
	sess.stop()
	return nil, nil
}

func (s *Scanner) lookup(scanID string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[scanID]
	return sess, ok
}

// runScan drives one scan end to end: open the first page (through the
// retry manager, so a transient network hiccup on the initial load does
// not sink the whole scan), collect + classify images, then step
// pagination until termination, collecting again after every successful
// step.
func (s *Scanner) runScan(sess *session) {
	dom, nav, err := s.retryableOpen(sess)
	if err != nil {
		s.router.Broadcast(orchestrator.EventScanError, scanErrorPayload(sess.id, err))
		return
	}
	sess.setNavigator(nav)

	detector := paginate.New(s.cfg.Pagination, s.canon)
	engine := paginate.NewEngine(s.cfg.Pagination, detector, nav, s.clock)
	sess.setEngine(engine)
	engine.Start(dom, sess.url)

	s.collectFrom(sess, dom, sess.url)
	s.router.Broadcast(orchestrator.EventScanComplete, sess.snapshot())

	for {
		if sess.stopped() {
			return
		}
		step := engine.Step(context.Background())
		s.router.Broadcast(orchestrator.EventPaginationProgress, step)
		s.router.Broadcast(orchestrator.EventPaginationStateUpdate, engine.PaginationState())
		if step.State == paginate.StateTerminated {
			return
		}
		s.collectFrom(sess, engine.DOM(), engine.CurrentURL())
	}
}

func (s *Scanner) collectFrom(sess *session, dom port.DomAdapter, pageURL string) {
	patterns, err := s.recognizer.Detect(context.Background(), dom, pageURL)
	if err != nil {
		slog.Warn("scan: pattern detection failed", "scan_id", sess.id, "error", err)
	}
	result, err := s.collector.Collect(dom, pageURL)
	if err != nil {
		slog.Warn("scan: image collection failed", "scan_id", sess.id, "error", err)
		return
	}
	assignConfidence(dom, pageURL, result.Records, patterns)
	sess.addRecords(result.Records)
}

func (s *Scanner) retryableOpen(sess *session) (port.DomAdapter, port.Navigator, error) {
	taskID := "scan-open-" + sess.id
	done := make(chan struct{})
	var dom port.DomAdapter
	var nav port.Navigator
	var outErr error

	sess.onOpenDone = func(d port.DomAdapter, n port.Navigator, e error) {
		dom, nav, outErr = d, n, e
		close(done)
	}

	op := models.Operation{Name: "scan.openPage", Args: map[string]string{"url": sess.url, "scan_id": sess.id}}
	if err := s.retryMgr.Submit(context.Background(), taskID, op, models.CategoryNetwork); err != nil {
		return nil, nil, err
	}
	<-done
	return dom, nav, outErr
}

func (s *Scanner) executeOpenPage(ctx context.Context, op models.Operation) error {
	scanID := op.Args["scan_id"]
	url := op.Args["url"]
	sess, ok := s.lookup(scanID)
	if !ok {
		return models.NewEngineError("SCAN_NOT_FOUND", models.CategoryValidation, "session vanished before open completed", nil)
	}
	dom, nav, err := s.openPage(ctx, url)
	if sess.onOpenDone != nil {
		sess.onOpenDone(dom, nav, err)
	}
	return err
}

func (s *Scanner) onRetryEvent(e retry.AttemptEvent) {
	switch {
	case e.BreakerTransition == "opened":
		s.router.Broadcast(orchestrator.EventCircuitBreakerOpened, e)
	case e.BreakerTransition == "reset":
		s.router.Broadcast(orchestrator.EventCircuitBreakerReset, e)
	case e.Terminal:
		s.router.Broadcast(orchestrator.EventRetryFailure, e)
	default:
		s.router.Broadcast(orchestrator.EventRetryAttempt, e)
	}
}

func scanErrorPayload(scanID string, err error) map[string]any {
	return map[string]any{"scan_id": scanID, "error": err.Error()}
}

// handlePaginationStart clears an already-open session's stop flag without
// reopening the page. It does not restart runScan's pagination loop once
// that loop has returned, and it does not revive an engine that
// PAGINATION_STOP terminated.
func (s *Scanner) handlePaginationStart(ctx context.Context, payload any) (any, error) {
	sess, err := s.sessionFromPayload(payload)
	if err != nil {
		return nil, err
	}
	sess.unstop()
	return nil, nil
}

func (s *Scanner) handlePaginationStop(ctx context.Context, payload any) (any, error) {
	sess, err := s.sessionFromPayload(payload)
	if err != nil {
		return nil, err
	}
	sess.stop()
	if e := sess.getEngine(); e != nil {
		e.Stop()
	}
	return nil, nil
}

func (s *Scanner) handlePaginationDetect(ctx context.Context, payload any) (any, error) {
	sess, err := s.sessionFromPayload(payload)
	if err != nil {
		return nil, err
	}
	e := sess.getEngine()
	if e == nil {
		return nil, models.NewEngineError("PAGINATION_NOT_STARTED", models.CategoryValidation, "pagination engine not started for this scan", nil)
	}
	return e.PaginationState(), nil
}

func (s *Scanner) handlePaginationNavigateNext(ctx context.Context, payload any) (any, error) {
	sess, err := s.sessionFromPayload(payload)
	if err != nil {
		return nil, err
	}
	e := sess.getEngine()
	if e == nil {
		return nil, models.NewEngineError("PAGINATION_NOT_STARTED", models.CategoryValidation, "pagination engine not started for this scan", nil)
	}
	step := e.Step(ctx)
	s.collectFrom(sess, e.DOM(), e.CurrentURL())
	return step, nil
}

func (s *Scanner) handlePaginationReset(ctx context.Context, payload any) (any, error) {
	sess, err := s.sessionFromPayload(payload)
	if err != nil {
		return nil, err
	}
	e := sess.getEngine()
	if e == nil {
		return nil, models.NewEngineError("PAGINATION_NOT_STARTED", models.CategoryValidation, "pagination engine not started for this scan", nil)
	}
	e.Stop()
	detector := paginate.New(s.cfg.Pagination, s.canon)
	nav := sess.getNavigator()
	fresh := paginate.NewEngine(s.cfg.Pagination, detector, nav, s.clock)
	fresh.Start(sess.navigatorDOM(), sess.url)
	sess.setEngine(fresh)
	return nil, nil
}

func (s *Scanner) handlePaginationGetState(ctx context.Context, payload any) (any, error) {
	sess, err := s.sessionFromPayload(payload)
	if err != nil {
		return nil, err
	}
	e := sess.getEngine()
	if e == nil {
		return nil, models.NewEngineError("PAGINATION_NOT_STARTED", models.CategoryValidation, "pagination engine not started for this scan", nil)
	}
	return e.PaginationState(), nil
}

// RetrySubmitRequest is RETRY_SUBMIT's payload: resubmit an arbitrary
// named operation under the manager's category policy, independent of
// any scan session (diagnostics, host-driven retries of its own work).
type RetrySubmitRequest struct {
	TaskID    string
	Operation models.Operation
	Category  models.ErrorCategory
}

func (s *Scanner) handleRetrySubmit(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(RetrySubmitRequest)
	if !ok {
		return nil, models.NewEngineError("RETRY_BAD_PAYLOAD", models.CategoryValidation, "RETRY_SUBMIT requires a RetrySubmitRequest", nil)
	}
	return nil, s.retryMgr.Submit(ctx, req.TaskID, req.Operation, req.Category)
}

func (s *Scanner) handleRetryCancel(ctx context.Context, payload any) (any, error) {
	taskID, ok := payload.(string)
	if !ok {
		return nil, models.NewEngineError("RETRY_BAD_PAYLOAD", models.CategoryValidation, "RETRY_CANCEL requires a task ID string", nil)
	}
	return s.retryMgr.Cancel(taskID), nil
}

// ExportDataRequest is EXPORT_DATA's payload.
type ExportDataRequest struct {
	ScanID   string
	Filename string
}

func (s *Scanner) handleExportData(ctx context.Context, payload any) (any, error) {
	req, ok := payload.(ExportDataRequest)
	if !ok {
		return nil, models.NewEngineError("EXPORT_BAD_PAYLOAD", models.CategoryValidation, "EXPORT_DATA requires an ExportDataRequest", nil)
	}
	if s.exportSink == nil {
		return nil, models.NewEngineError("EXPORT_NO_SINK", models.CategoryValidation, "no ExportSink configured", nil)
	}
	sess, ok := s.lookup(req.ScanID)
	if !ok {
		return nil, models.NewEngineError("SCAN_NOT_FOUND", models.CategoryValidation, "unknown scan ID: "+req.ScanID, nil)
	}
	data, err := json.Marshal(sess.snapshot())
	if err != nil {
		return nil, fmt.Errorf("marshaling scan records: %w", err)
	}
	filename := req.Filename
	if filename == "" {
		filename = fmt.Sprintf("scan-%s.json", req.ScanID)
	}
	if err := s.exportSink.Write(ctx, filename, "application/json", data); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Scanner) sessionFromPayload(payload any) (*session, error) {
	scanID, ok := payload.(string)
	if !ok {
		return nil, models.NewEngineError("SCAN_BAD_PAYLOAD", models.CategoryValidation, "expected a scan ID string", nil)
	}
	sess, ok := s.lookup(scanID)
	if !ok {
		return nil, models.NewEngineError("SCAN_NOT_FOUND", models.CategoryValidation, "unknown scan ID: "+scanID, nil)
	}
	return sess, nil
}
