package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"warden/api/audit"
	"warden/api/consul"
	"warden/api/hub"
	"warden/api/nomad"
	"warden/api/remedy"
	"warden/api/status"
	"warden/api/storage"
	"warden/api/store"
)

var validServiceIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type Handler struct {
	store  *status.Store
	intake *status.Intake
	engine *remedy.Engine
	audit  audit.Store
	db     *store.DB
	nomad  *nomad.Client
	consul *consul.Client
	s3     *storage.Client
	ws     *hub.Hub
}

func New(st *status.Store, in *status.Intake, eng *remedy.Engine, aud audit.Store, db *store.DB, n *nomad.Client, c *consul.Client, s3 *storage.Client, ws *hub.Hub) *Handler {
	return &Handler{
		store:  st,
		intake: in,
		engine: eng,
		audit:  aud,
		db:     db,
		nomad:  n,
		consul: c,
		s3:     s3,
		ws:     ws,
	}
}

// ValidateServiceID is middleware that rejects requests with invalid
// service IDs.
func ValidateServiceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id != "" && !validServiceIDRe.MatchString(id) {
			http.Error(w, "invalid service id", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeAccepted(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
