package scan

import (
	"sync"

	"github.com/use-agent/gallerydiscover/models"
	"github.com/use-agent/gallerydiscover/paginate"
	"github.com/use-agent/gallerydiscover/port"
)

// session is the mutable state of one in-flight SCAN_START call: its
// navigator, pagination engine, and the image records accumulated across
// every page visited so far.
type session struct {
	id  string
	url string

	mu      sync.Mutex
	stop_   bool
	nav     port.Navigator
	engine  *paginate.Engine
	records []models.ImageRecord
	seenURL map[string]struct{}

	// onOpenDone is invoked by the retry-wrapped scan.openPage executor
	// once the first page has been opened (successfully or not).
	onOpenDone func(port.DomAdapter, port.Navigator, error)
}

func newSession(id, url string) *session {
	return &session{id: id, url: url, seenURL: make(map[string]struct{})}
}

func (s *session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop_ = true
}

func (s *session) unstop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop_ = false
}

func (s *session) stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop_
}

func (s *session) setNavigator(n port.Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav = n
}

func (s *session) getNavigator() port.Navigator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

func (s *session) setEngine(e *paginate.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = e
}

func (s *session) getEngine() *paginate.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

// navigatorDOM returns the pagination engine's current document view.
func (s *session) navigatorDOM() port.DomAdapter {
	e := s.getEngine()
	if e == nil {
		return nil
	}
	return e.DOM()
}

// addRecords merges newly discovered records into the session's running
// set, deduplicating by URL across every page of the scan (not just the
// page they were discovered on).
func (s *session) addRecords(recs []models.ImageRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range recs {
		if _, dup := s.seenURL[r.URL]; dup {
			continue
		}
		s.seenURL[r.URL] = struct{}{}
		s.records = append(s.records, r)
	}
}

// ScanSnapshot is the EXPORT_DATA/SCAN_COMPLETE payload shape.
type ScanSnapshot struct {
	ScanID  string
	URL     string
	Records []models.ImageRecord
}

func (s *session) snapshot() ScanSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ImageRecord, len(s.records))
	copy(out, s.records)
	return ScanSnapshot{ScanID: s.id, URL: s.url, Records: out}
}
