package handler

import (
	"errors"
	"fmt"
	"net/http"

	"warden/api/model"
	"warden/api/status"
)

// Report is the agent ingress. The report is queued and applied
// asynchronously; a stale observation is accepted here and dropped during
// apply rather than surfaced as an error to the agent.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var rep model.Report
	if err := decodeJSON(r, &rep); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rep.Service == "" {
		writeError(w, http.StatusBadRequest, "service required")
		return
	}

	if err := h.intake.Submit(rep); err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownService):
			writeError(w, http.StatusNotFound, fmt.Sprintf("service %s not configured", rep.Service))
		case errors.Is(err, status.ErrSaturated):
			writeError(w, http.StatusServiceUnavailable, "report queue saturated")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeAccepted(w, map[string]string{"status": "received"})
}
