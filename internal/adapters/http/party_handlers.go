package httpadapter

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/rental-intake/internal/core/domain"
)

func (rt *Router) addParty(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req addPartyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	party, err := session.AddParty(r.Context(), req.newParty())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, party)
}

func (rt *Router) updateParty(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	var req partyPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	party, err := session.UpdateParty(chi.URLParam(r, "localID"), req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

func (rt *Router) removeParty(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	if err := session.RemoveParty(chi.URLParam(r, "localID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) materializeParty(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	party, err := session.MaterializeParty(r.Context(), chi.URLParam(r, "localID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, party)
}

func (rt *Router) reportProgress(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	if err := session.ReportProgress(chi.URLParam(r, "localID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Progress())
}

func (rt *Router) getRequirements(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	localID := chi.URLParam(r, "localID")
	reqs, err := session.Requirements(localID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []domain.DocumentRequirement{}
	}
	writeJSON(w, http.StatusOK, requirementsResponse{PartyID: localID, Requirements: reqs})
}

// uploadDocuments reads a multipart batch: repeated "files" parts hold new
// payloads, repeated "carried" values name evidence the slot keeps.
// keep_existing=true carries every file the slot already holds.
func (rt *Router) uploadDocuments(w http.ResponseWriter, r *http.Request) {
	session, ok := rt.session(w, r)
	if !ok {
		return
	}
	localID := chi.URLParam(r, "localID")
	documentType := chi.URLParam(r, "documentType")

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodyBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "multipart form is required"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var items []domain.UploadItem
	if keep, _ := strconv.ParseBool(r.FormValue("keep_existing")); keep {
		items = append(items, existingItems(session.Dossier(), localID, documentType)...)
	}
	for _, id := range r.MultipartForm.Value["carried"] {
		if id = strings.TrimSpace(id); id != "" {
			items = append(items, domain.CarriedItem(id))
		}
	}
	for _, header := range r.MultipartForm.File["files"] {
		item, err := readPart(header)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cannot read " + header.Filename})
			return
		}
		items = append(items, item)
	}

	outcome, err := session.UploadDocuments(r.Context(), localID, documentType, items)
	if err != nil {
		var uploadErr *domain.UploadError
		if errors.As(err, &uploadErr) {
			index := uploadErr.Index
			writeJSON(w, mapErrorToHTTPStatus(err), uploadFailureResponse{
				errorResponse: errorResponse{Error: err.Error(), Index: &index},
				Outcome:       outcome,
			})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func existingItems(dossier *domain.Dossier, localID, documentType string) []domain.UploadItem {
	party := dossier.Party(localID)
	if party == nil {
		return nil
	}
	slot := party.Slot(documentType)
	if slot == nil {
		return nil
	}
	var items []domain.UploadItem
	for _, ev := range slot.Files() {
		items = append(items, domain.CarriedItem(ev.ID))
	}
	return items
}

func readPart(header *multipart.FileHeader) (domain.UploadItem, error) {
	file, err := header.Open()
	if err != nil {
		return domain.UploadItem{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.UploadItem{}, err
	}
	return domain.NewPayloadItem(header.Filename, header.Header.Get("Content-Type"), data), nil
}
