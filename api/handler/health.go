package handler

import (
	"net/http"
)

// Health reports control-plane health: each optional backend plus the
// size of the monitored set. Service health itself lives under /status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{}

	if h.db != nil {
		if err := h.db.Healthy(r.Context()); err != nil {
			services["postgres"] = "down"
		} else {
			services["postgres"] = "up"
		}
	}

	if h.nomad != nil {
		if err := h.nomad.Healthy(); err != nil {
			services["nomad"] = "down"
		} else {
			services["nomad"] = "up"
		}
	}

	consulLeader := ""
	if h.consul != nil {
		if err := h.consul.Healthy(); err != nil {
			services["consul"] = "down"
		} else {
			services["consul"] = "up"
			consulLeader, _ = h.consul.Leader()
		}
	}

	if h.s3 != nil {
		if err := h.s3.Healthy(r.Context()); err != nil {
			services["s3"] = "down"
		} else {
			services["s3"] = "up"
		}
	}

	status := "ok"
	for _, v := range services {
		if v == "down" {
			status = "degraded"
			break
		}
	}

	payload := map[string]interface{}{
		"status":    status,
		"services":  services,
		"monitored": h.store.Registry().Len(),
		"wsClients": h.ws.ClientCount(),
	}
	if consulLeader != "" {
		payload["consulLeader"] = consulLeader
	}
	writeJSON(w, payload)
}
