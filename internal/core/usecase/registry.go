package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

// SessionRegistry keeps one live session per dossier. Concurrent opens of
// the same dossier share a single snapshot load.
type SessionRegistry struct {
	deps  SessionDeps
	newID func() string
	loads singleflight.Group

	mu       sync.Mutex
	sessions map[string]*IntakeSession
}

func NewSessionRegistry(deps SessionDeps) *SessionRegistry {
	return &SessionRegistry{
		deps:     deps.normalize(),
		newID:    uuid.NewString,
		sessions: make(map[string]*IntakeSession),
	}
}

func (r *SessionRegistry) Create(_ context.Context, opts domain.OpenOptions) (ports.IntakeSession, error) {
	session := NewSession(r.deps, r.newID(), opts)
	id := session.ID()

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()
	slog.Info("dossier_created", "dossier_id", id)
	return session, nil
}

func (r *SessionRegistry) Open(ctx context.Context, dossierID string, opts domain.OpenOptions) (ports.IntakeSession, error) {
	return r.open(ctx, dossierID, opts)
}

// open returns the live session for dossierID, loading it when needed.
func (r *SessionRegistry) open(ctx context.Context, dossierID string, opts domain.OpenOptions) (*IntakeSession, error) {
	dossierID = strings.TrimSpace(dossierID)
	if dossierID == "" {
		return nil, domain.NewValidationError("dossier_id", "dossier id is required")
	}

	r.mu.Lock()
	if session, ok := r.sessions[dossierID]; ok {
		r.mu.Unlock()
		return session, nil
	}
	r.mu.Unlock()

	v, err, _ := r.loads.Do(dossierID, func() (any, error) {
		r.mu.Lock()
		if session, ok := r.sessions[dossierID]; ok {
			r.mu.Unlock()
			return session, nil
		}
		r.mu.Unlock()

		session, err := LoadSession(ctx, r.deps, dossierID, opts)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.sessions[dossierID] = session
		r.mu.Unlock()
		slog.Info("dossier_opened", "dossier_id", dossierID, "parties", len(session.Dossier().Parties))
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*IntakeSession), nil
}

// RecordLogin emits the login event for an applicant signing in.
func (r *SessionRegistry) RecordLogin(email, dossierID string) {
	payload := map[string]any{"email": strings.TrimSpace(email)}
	if dossierID != "" {
		payload["dossierId"] = dossierID
	}
	r.deps.Events.Dispatch(domain.EventLogin, payload)
}

// Len is the number of sessions held in memory.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Evict closes and forgets the session for dossierID.
func (r *SessionRegistry) Evict(dossierID string) {
	r.mu.Lock()
	session, ok := r.sessions[dossierID]
	delete(r.sessions, dossierID)
	r.mu.Unlock()
	if ok {
		session.Close()
	}
}

// FlushAll writes every session with unsaved mutations. Used on shutdown.
func (r *SessionRegistry) FlushAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*IntakeSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var firstErr error
	for _, s := range sessions {
		if !s.saver.Pending() {
			s.Close()
			continue
		}
		if err := s.saver.Flush(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		s.Close()
	}
	return firstErr
}
