package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

// pdfBytes sniffs as application/pdf.
var pdfBytes = []byte("%PDF-1.4\n%test\n")

func pdfItem(name string) domain.UploadItem {
	return domain.NewPayloadItem(name, "application/pdf", pdfBytes)
}

type storeFake struct {
	mu sync.Mutex

	dossiers     map[string]domain.Dossier
	parties      map[string]domain.Party
	documents    []domain.StoredDocument
	deletedDocs  []string
	deletedParty []string
	nextID       int

	upsertDossierCalls int
	upsertPartyCalls   int

	upsertDossierErr error
	upsertPartyErr   error
	insertDocErr     error
	loadErr          error
	snapshot         *domain.Snapshot
}

func newStoreFake() *storeFake {
	return &storeFake{
		dossiers: make(map[string]domain.Dossier),
		parties:  make(map[string]domain.Party),
	}
}

func (f *storeFake) UpsertDossier(_ context.Context, d *domain.Dossier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertDossierCalls++
	if f.upsertDossierErr != nil {
		return f.upsertDossierErr
	}
	f.dossiers[d.ID] = *d.Clone()
	return nil
}

func (f *storeFake) UpsertParty(_ context.Context, _ string, p *domain.Party) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertPartyCalls++
	if f.upsertPartyErr != nil {
		return "", f.upsertPartyErr
	}
	id := p.DurableID
	if id == "" {
		f.nextID++
		id = fmt.Sprintf("party-%d", f.nextID)
	}
	stored := *p.Clone()
	stored.DurableID = id
	f.parties[id] = stored
	return id, nil
}

func (f *storeFake) DeleteParty(_ context.Context, durableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.parties, durableID)
	f.deletedParty = append(f.deletedParty, durableID)
	return nil
}

func (f *storeFake) InsertDocumentMetadata(_ context.Context, doc domain.StoredDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertDocErr != nil {
		return f.insertDocErr
	}
	f.documents = append(f.documents, doc)
	return nil
}

func (f *storeFake) DeleteDocumentMetadata(_ context.Context, evidenceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedDocs = append(f.deletedDocs, evidenceID)
	return nil
}

func (f *storeFake) LoadSnapshot(_ context.Context, dossierID string) (*domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if f.snapshot != nil {
		return f.snapshot, nil
	}
	return nil, domain.WrapError(domain.ErrDossierNotFound, "load snapshot", errors.New(dossierID))
}

func (f *storeFake) dossierSaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertDossierCalls
}

func (f *storeFake) storedDossier(id string) (domain.Dossier, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dossiers[id]
	return d, ok
}

func (f *storeFake) setUpsertDossierErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertDossierErr = err
}

// blobFake fails every upload from failAt (1-based) onward when failAt > 0.
type blobFake struct {
	mu      sync.Mutex
	paths   []string
	deleted []string
	calls   int
	failAt  int
}

func (f *blobFake) UploadBlob(_ context.Context, path string, data io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls >= f.failAt {
		return "", errors.New("storage unavailable")
	}
	if _, err := io.ReadAll(data); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return "blob://" + path, nil
}

func (f *blobFake) DeleteBlob(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

type recordedEvent struct {
	Type    domain.EventType
	Payload map[string]any
}

type emitterFake struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *emitterFake) Dispatch(eventType domain.EventType, payload map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{Type: eventType, Payload: payload})
}

func (f *emitterFake) ofType(eventType domain.EventType) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type accountsFake struct {
	mu            sync.Mutex
	ensured       []ports.AccountRequest
	relationships []string
	err           error
}

func (f *accountsFake) EnsureAccount(_ context.Context, req ports.AccountRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.ensured = append(f.ensured, req)
	return "acct-" + req.Email, nil
}

func (f *accountsFake) RecordRelationship(_ context.Context, primary, related string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationships = append(f.relationships, primary+"->"+related+":"+string(role))
	return nil
}

// manualScheduler is a virtual clock; timers fire only from Advance.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	due     time.Duration
	order   int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, due: s.now + d, order: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, running due callbacks in time order.
// Callbacks run without the scheduler lock so they may schedule again.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due []*manualTimer
		for _, t := range s.timers {
			if !t.stopped && !t.fired && t.due <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.now = target
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].due != due[j].due {
				return due[i].due < due[j].due
			}
			return due[i].order < due[j].order
		})
		next := due[0]
		next.fired = true
		s.now = next.due
		s.mu.Unlock()

		next.f()
	}
}

type metricsFake struct {
	mu            sync.Mutex
	saves         int
	saveErrors    int
	notifications map[string]int
}

func (m *metricsFake) ObserveSave(_ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if err != nil {
		m.saveErrors++
	}
}

func (m *metricsFake) ObserveUpload(string, int, error) {}

func (m *metricsFake) ObserveNotification(eventType domain.EventType, notifier string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notifications == nil {
		m.notifications = make(map[string]int)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.notifications[notifier+"/"+string(eventType)+"/"+outcome]++
}
