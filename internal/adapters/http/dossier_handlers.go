package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/core/ports"
)

// session opens the dossier named in the path. On failure the response is
// already written.
func (rt *Router) session(w http.ResponseWriter, r *http.Request) (ports.IntakeSession, bool) {
	session, err := rt.sessions.Open(r.Context(), chi.URLParam(r, "dossierID"), domain.OpenOptions{})
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return session, true
}

func viewOf(session ports.IntakeSession) dossierResponse {
	return dossierResponse{
		Dossier:    session.Dossier(),
		Progress:   session.Progress(),
		SaveStatus: session.SaveStatus(),
	}
}

func (rt *Router) createDossier(w http.ResponseWriter, r *http.Request) {
	var req createDossierRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := rt.sessions.Create(r.Context(), req.options())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := viewOf(session)
	w.Header().Set("Location", "/v1/dossiers/"+view.Dossier.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (rt *Router) getDossier(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (rt *Router) updateBid(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req bidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	patch, err := req.patch()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := session.UpdateBid(patch); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (rt *Router) getProgress(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.Progress())
}

func (rt *Router) getSaveStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.SaveStatus())
}

func (rt *Router) submit(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	if err := session.Submit(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(session))
}

func (rt *Router) export(w http.ResponseWriter, r *http.Request) {
	if rt.exporter == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "export is not configured"})
		return
	}
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	dossier := session.Dossier()

	var buf bytes.Buffer
	if err := rt.exporter.Export(r.Context(), dossier, session.Progress(), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", rt.exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "dossier-"+dossier.ID+".xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
