package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/qtcstream/qtcstream/server/internal/store"
)

const entitiesPrefix = "/api/v1/entities/"

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler reading from st and registers all routes.
func New(st *store.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/entities", h.listEntities)
	h.mux.HandleFunc(entitiesPrefix, h.getEntity) // subtree, extracts {uuid}
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, last := h.store.Batches()
	resp := HealthResponse{
		State:       "idle",
		EntityCount: len(h.store.List()),
		BatchCount:  n,
		TTLSeconds:  h.store.TTL().Seconds(),
	}
	if resp.EntityCount > 0 {
		resp.State = "ok"
	}
	if last != nil {
		resp.LastBatchAt = last.ReceivedAt.UTC().Format(time.RFC3339)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listEntities returns GET /api/v1/entities, ordered by uuid.
func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, entities(h.store.List()))
}

// getEntity returns GET /api/v1/entities/{uuid}.
func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, entitiesPrefix)
	if id == "" {
		h.listEntities(w, r)
		return
	}

	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "entity not found")
		return
	}
	jsonResp(w, http.StatusOK, toEntityResponse(e))
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the snapshot payload shared by the REST API and the
// WebSocket hub.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	n, last := st.Batches()
	resp := SnapshotResponse{
		Entities:    entities(st.List()),
		BatchCount:  n,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if last != nil {
		resp.LastBatch = &BatchResponse{
			ID:         last.ID,
			FrameID:    last.FrameID,
			Seq:        last.Seq,
			Results:    last.Results,
			Stamp:      last.Stamp.UTC().Format(time.RFC3339Nano),
			ReceivedAt: last.ReceivedAt.UTC().Format(time.RFC3339),
		}
	}
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func entities(list []*store.Entry) []EntityResponse {
	out := make([]EntityResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toEntityResponse(e))
	}
	return out
}

func toEntityResponse(e *store.Entry) EntityResponse {
	return EntityResponse{
		Result:   e.Result,
		FrameID:  e.FrameID,
		Seq:      e.Seq,
		BatchID:  e.BatchID,
		Stamp:    e.Stamp.UTC().Format(time.RFC3339Nano),
		LastSeen: e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
