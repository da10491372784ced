package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden/api/audit"
	"warden/api/model"
)

// Remediate triggers a manual remediation attempt and returns without
// waiting for it. The ?force=1 query parameter (or {"force":true} body)
// overrides a cooldown rejection; an attempt already in progress is never
// overridden.
func (h *Handler) Remediate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Force bool `json:"force"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	force := req.Force || r.URL.Query().Get("force") == "1"

	attemptID, err := h.engine.Trigger(id, audit.TriggerManual, force)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownService):
			writeError(w, http.StatusNotFound, fmt.Sprintf("service %s not found", id))
		case errors.Is(err, model.ErrAlreadyRemediating):
			writeRejected(w, "already_remediating", err)
		case errors.Is(err, model.ErrCooldown):
			writeRejected(w, "cooldown", err)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeAccepted(w, map[string]string{
		"attemptId": attemptID,
		"status":    "remediating",
	})
}

func writeRejected(w http.ResponseWriter, reason string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  err.Error(),
		"reason": reason,
	})
}
