package httpadapter

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/rental-intake/internal/config"
	"github.com/kirillkom/rental-intake/internal/core/ports"
	"github.com/kirillkom/rental-intake/internal/observability/metrics"
)

const (
	maxJSONBodyBytes   = 1 << 20
	maxUploadBodyBytes = 64 << 20
	multipartMemory    = 16 << 20
)

type Router struct {
	sessions ports.IntakeSessions
	exporter ports.DossierExporter
	metrics  *metrics.HTTPServerMetrics

	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

// NewRouter builds the REST surface. exporter and httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	sessions ports.IntakeSessions,
	exporter ports.DossierExporter,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		sessions:         sessions,
		exporter:         exporter,
		metrics:          httpMetrics,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIMaxInFlight,
		backpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}
	r.Get("/healthz", rt.healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events/login", rt.recordLogin)

		r.Post("/dossiers", rt.createDossier)
		r.Route("/dossiers/{dossierID}", func(r chi.Router) {
			r.Get("/", rt.getDossier)
			r.Patch("/bid", rt.updateBid)
			r.Get("/progress", rt.getProgress)
			r.Get("/save-status", rt.getSaveStatus)
			r.Post("/submit", rt.submit)
			r.Get("/export", rt.export)

			r.Post("/parties", rt.addParty)
			r.Route("/parties/{localID}", func(r chi.Router) {
				r.Patch("/", rt.updateParty)
				r.Delete("/", rt.removeParty)
				r.Post("/materialize", rt.materializeParty)
				r.Post("/report-progress", rt.reportProgress)
				r.Get("/requirements", rt.getRequirements)
				r.Post("/documents/{documentType}", rt.uploadDocuments)
			})
		})
	})

	var handler http.Handler = r
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) recordLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email is required", Field: "email"})
		return
	}
	rt.sessions.RecordLogin(req.Email, req.DossierID)
	w.WriteHeader(http.StatusAccepted)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
