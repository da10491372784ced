package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"warden/api/audit"
	"warden/api/model"
	"warden/api/remedy"
)

// serviceView pairs a service's static config with its live state.
type serviceView struct {
	Config      *model.ServiceConfig `json:"config"`
	Record      model.HealthRecord   `json:"record"`
	Remediation remedy.State         `json:"remediation"`
}

func (h *Handler) serviceViews() []serviceView {
	records := h.store.Snapshot()
	states := h.engine.States()

	views := make([]serviceView, 0, len(records))
	for _, rec := range records {
		svc, _ := h.store.Registry().Get(rec.Service)
		views = append(views, serviceView{
			Config:      svc,
			Record:      rec,
			Remediation: states[rec.Service],
		})
	}
	return views
}

// ClusterStatus is the aggregated dashboard view: overall health, every
// service's state and the most recent remediation attempts.
func (h *Handler) ClusterStatus(w http.ResponseWriter, r *http.Request) {
	views := h.serviceViews()

	healthy := 0
	for _, v := range views {
		if v.Record.Known && v.Record.Healthy {
			healthy++
		}
	}
	overall := "healthy"
	if healthy < len(views) {
		overall = "degraded"
	}

	recent, err := h.audit.ListRecent(r.Context(), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recent == nil {
		recent = []audit.Entry{}
	}

	payload := map[string]interface{}{
		"cluster":        h.store.Registry().Cluster,
		"status":         overall,
		"healthy":        healthy,
		"total":          len(views),
		"services":       views,
		"recentAttempts": recent,
	}
	if h.db != nil {
		if stats, err := h.db.DailyRemediationStats(r.Context()); err == nil {
			payload["attempts24h"] = stats
		}
	}
	writeJSON(w, payload)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.serviceViews())
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	svc, ok := h.store.Registry().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("service %s not found", id))
		return
	}
	rec, _ := h.store.Get(id)
	writeJSON(w, serviceView{
		Config:      svc,
		Record:      rec,
		Remediation: h.engine.State(id),
	})
}

// GetServiceHistory returns the recent report history for one service.
// History is only kept when a database is configured.
func (h *Handler) GetServiceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.store.Registry().Get(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("service %s not found", id))
		return
	}
	if h.db == nil {
		writeError(w, http.StatusServiceUnavailable, "report history requires a database")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	reports, err := h.db.ListReports(r.Context(), id, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, reports)
}
