package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/rental-intake/internal/config"
	"github.com/kirillkom/rental-intake/internal/core/domain"
	"github.com/kirillkom/rental-intake/internal/observability/metrics"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	res := doJSON(t, newTestHandler(config.Config{}, defaultSessions()), http.MethodGet, "/healthz", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestCreateDossierPassesContact(t *testing.T) {
	sessions := defaultSessions()
	res := doJSON(t, newTestHandler(config.Config{}, sessions), http.MethodPost, "/v1/dossiers", map[string]any{
		"property": map[string]any{"id": "prop-9", "address": "Keizersgracht 1"},
		"name":     " Anna ",
		"email":    "anna@example.com",
		"phone":    "0612345678",
	})
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get("Location") != "/v1/dossiers/d-1" {
		t.Fatalf("unexpected location %q", res.Header().Get("Location"))
	}
	if len(sessions.created) != 1 || sessions.created[0].Name != "Anna" || sessions.created[0].Property.ID != "prop-9" {
		t.Fatalf("unexpected create options %+v", sessions.created)
	}
}

func TestGetDossierReturnsViewAndMaps404(t *testing.T) {
	h := newTestHandler(config.Config{}, defaultSessions())

	res := doJSON(t, h, http.MethodGet, "/v1/dossiers/d-1", nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var view struct {
		Dossier struct {
			ID string `json:"id"`
		} `json:"dossier"`
		Progress struct {
			Percent int `json:"percent"`
		} `json:"progress"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Dossier.ID != "d-1" || view.Progress.Percent != 42 {
		t.Fatalf("unexpected view %+v", view)
	}

	res = doJSON(t, h, http.MethodGet, "/v1/dossiers/missing/progress", nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestUpdateBidParsesDates(t *testing.T) {
	sessions := defaultSessions()
	h := newTestHandler(config.Config{}, sessions)

	res := doJSON(t, h, http.MethodPatch, "/v1/dossiers/d-1/bid", map[string]any{
		"bid_amount": 1500,
		"start_date": "2026-11-01",
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	patch := sessions.session.bidPatches[0]
	if patch.BidAmount == nil || *patch.BidAmount != 1500 || patch.StartDate == nil || patch.StartDate.Day() != 1 {
		t.Fatalf("unexpected patch %+v", patch)
	}

	res = doJSON(t, h, http.MethodPatch, "/v1/dossiers/d-1/bid", map[string]any{"start_date": ""})
	if res.Code != http.StatusOK || !sessions.session.bidPatches[1].ClearStart {
		t.Fatalf("empty start date should clear it")
	}

	res = doJSON(t, h, http.MethodPatch, "/v1/dossiers/d-1/bid", map[string]any{"start_date": "01-11-2026"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", res.Code)
	}
	var body errorResponse
	_ = json.Unmarshal(res.Body.Bytes(), &body)
	if body.Field != "start_date" {
		t.Fatalf("expected field start_date, got %+v", body)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: domain.NewValidationError("bid_amount", "must not be negative"), want: http.StatusBadRequest},
		{name: "party not found", err: domain.WrapError(domain.ErrPartyNotFound, "update", errors.New("p-9")), want: http.StatusNotFound},
		{name: "persistence", err: domain.WrapError(domain.ErrPersistence, "save", errors.New("db down")), want: http.StatusServiceUnavailable},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "crm", errors.New("timeout")), want: http.StatusServiceUnavailable},
		{name: "unauthorized", err: domain.WrapError(domain.ErrUnauthorized, "crm", errors.New("401")), want: http.StatusUnauthorized},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sessions := defaultSessions()
			sessions.session.err = tc.err
			res := doJSON(t, newTestHandler(config.Config{}, sessions), http.MethodPatch, "/v1/dossiers/d-1/bid", map[string]any{})
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	sessions := defaultSessions()
	sessions.session.err = errors.New("pq: password authentication failed")
	res := doJSON(t, newTestHandler(config.Config{}, sessions), http.MethodPost, "/v1/dossiers/d-1/submit", nil)
	if strings.Contains(res.Body.String(), "password") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}

func TestPartyRoutes(t *testing.T) {
	sessions := defaultSessions()
	h := newTestHandler(config.Config{}, sessions)

	res := doJSON(t, h, http.MethodPost, "/v1/dossiers/d-1/parties", map[string]any{
		"role":  "guarantor",
		"name":  "Bob",
		"email": "bob@example.com",
	})
	if res.Code != http.StatusCreated || sessions.session.added[0].Role != domain.RoleGuarantor {
		t.Fatalf("add party: %d %+v", res.Code, sessions.session.added)
	}

	res = doJSON(t, h, http.MethodPatch, "/v1/dossiers/d-1/parties/p-1", map[string]any{"employment_status": " Employee "})
	if res.Code != http.StatusOK {
		t.Fatalf("update party: %d", res.Code)
	}
	if status := sessions.session.partyPatches[0].EmploymentStatus; status == nil || *status != domain.EmploymentEmployee {
		t.Fatalf("status not normalized: %v", status)
	}

	res = doJSON(t, h, http.MethodPatch, "/v1/dossiers/d-1/parties/p-9", map[string]any{})
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown party, got %d", res.Code)
	}

	res = doJSON(t, h, http.MethodDelete, "/v1/dossiers/d-1/parties/p-2", nil)
	if res.Code != http.StatusNoContent || sessions.session.removed[0] != "p-2" {
		t.Fatalf("remove party: %d %v", res.Code, sessions.session.removed)
	}

	res = doJSON(t, h, http.MethodGet, "/v1/dossiers/d-1/parties/p-1/requirements", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), `"payslips"`) {
		t.Fatalf("requirements: %d %s", res.Code, res.Body.String())
	}

	res = doJSON(t, h, http.MethodPost, "/v1/dossiers/d-1/parties/p-1/materialize", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "party-1") {
		t.Fatalf("materialize: %d %s", res.Code, res.Body.String())
	}
}

func multipartBody(t *testing.T, fields map[string][]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, values := range fields {
		for _, v := range values {
			if err := mw.WriteField(key, v); err != nil {
				t.Fatalf("write field: %v", err)
			}
		}
	}
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestUploadBuildsBatchFromMultipart(t *testing.T) {
	sessions := defaultSessions()
	h := newTestHandler(config.Config{}, sessions)

	body, contentType := multipartBody(t,
		map[string][]string{"carried": {"ev-2"}},
		map[string]string{"mar.pdf": "%PDF-1.4"},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/dossiers/d-1/parties/p-1/documents/payslips", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	items := sessions.session.uploads[0]
	if len(items) != 2 || items[0].CarriedID != "ev-2" || items[1].Payload == nil || items[1].Payload.Filename != "mar.pdf" {
		t.Fatalf("unexpected batch %+v", items)
	}
}

func TestUploadKeepExistingCarriesSlotFiles(t *testing.T) {
	sessions := defaultSessions()
	h := newTestHandler(config.Config{}, sessions)

	body, contentType := multipartBody(t,
		map[string][]string{"keep_existing": {"true"}},
		map[string]string{"mar.pdf": "%PDF-1.4"},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/dossiers/d-1/parties/p-1/documents/payslips", body)
	req.Header.Set("Content-Type", contentType)
	h.ServeHTTP(httptest.NewRecorder(), req)

	items := sessions.session.uploads[0]
	if len(items) != 3 || items[0].CarriedID != "ev-1" || items[1].CarriedID != "ev-2" {
		t.Fatalf("expected both existing files carried first, got %+v", items)
	}
}

func TestUploadPartialFailureReportsIndexAndOutcome(t *testing.T) {
	sessions := defaultSessions()
	sessions.session.err = &domain.UploadError{Index: 1, Filename: "b.pdf", Err: errors.New("disk full")}
	sessions.session.uploadResult = domain.UploadOutcome{
		Slot:     domain.DocumentSlot{DocumentType: "payslips", Status: domain.SlotReceived},
		Uploaded: []domain.Evidence{{ID: "ev-9", Filename: "a.pdf"}},
	}
	h := newTestHandler(config.Config{}, sessions)

	body, contentType := multipartBody(t, nil, map[string]string{"a.pdf": "%PDF-1.4"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dossiers/d-1/parties/p-1/documents/payslips", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)

	if res.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", res.Code)
	}
	var resp struct {
		Index   *int `json:"index"`
		Outcome struct {
			Uploaded []domain.Evidence `json:"uploaded"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Index == nil || *resp.Index != 1 || len(resp.Outcome.Uploaded) != 1 {
		t.Fatalf("unexpected failure body %s", res.Body.String())
	}
}

func TestUploadRejectsNonMultipart(t *testing.T) {
	res := doJSON(t, newTestHandler(config.Config{}, defaultSessions()), http.MethodPost, "/v1/dossiers/d-1/parties/p-1/documents/payslips", map[string]any{})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSubmitExportAndLogin(t *testing.T) {
	sessions := defaultSessions()
	h := newTestHandler(config.Config{}, sessions)

	res := doJSON(t, h, http.MethodPost, "/v1/dossiers/d-1/submit", nil)
	if res.Code != http.StatusOK || !sessions.session.submitted {
		t.Fatalf("submit: %d", res.Code)
	}

	res = doJSON(t, h, http.MethodGet, "/v1/dossiers/d-1/export", nil)
	if res.Code != http.StatusOK || res.Body.String() != "export:d-1" {
		t.Fatalf("export: %d %q", res.Code, res.Body.String())
	}
	if res.Header().Get("Content-Type") != "application/test" || !strings.Contains(res.Header().Get("Content-Disposition"), "dossier-d-1.xlsx") {
		t.Fatalf("unexpected export headers %v", res.Header())
	}

	res = doJSON(t, h, http.MethodPost, "/v1/events/login", map[string]any{"email": "anna@example.com", "dossier_id": "d-1"})
	if res.Code != http.StatusAccepted || sessions.logins[0] != "anna@example.com|d-1" {
		t.Fatalf("login: %d %v", res.Code, sessions.logins)
	}

	res = doJSON(t, h, http.MethodPost, "/v1/events/login", map[string]any{})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without email, got %d", res.Code)
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	h := NewRouter(config.Config{}, defaultSessions(), nil, metrics.NewHTTPServerMetrics("api")).Handler()

	doJSON(t, h, http.MethodGet, "/v1/dossiers/d-1/save-status", nil)
	res := doJSON(t, h, http.MethodGet, "/metrics", nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "intake_http_requests_total") {
		t.Fatalf("metrics: %d %s", res.Code, res.Body.String())
	}

	res = doJSON(t, h, http.MethodGet, "/v1/dossiers/d-1/export", nil)
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 without exporter, got %d", res.Code)
	}
}
