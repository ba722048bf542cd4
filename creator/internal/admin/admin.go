// Package admin serves the creator's operational HTTP endpoints: liveness,
// Prometheus metrics, the live classifier parameters and the tick loop
// status.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qtcstream/qtcstream/creator/internal/config"
	"github.com/qtcstream/qtcstream/creator/internal/pipeline"
)

const maxPatchBytes = 1 << 16

// StatusSource reports the tick loop status. *pipeline.Pipeline implements it.
type StatusSource interface {
	Status() pipeline.Status
}

type handler struct {
	params *config.ParamStore
	status StatusSource
}

// New returns the admin router.
func New(params *config.ParamStore, status StatusSource, gatherer prometheus.Gatherer) http.Handler {
	h := &handler{params: params, status: status}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/params", h.getParams)
		r.Patch("/params", h.patchParams)
		r.Get("/status", h.getStatus)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getParams(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.params.Snapshot())
}

// patchParams applies a partial update such as {"qtc_type": 1}. The change
// takes effect from the next tick.
func (h *handler) patchParams(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPatchBytes)).Decode(&patch); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(patch) == 0 {
		jsonErr(w, http.StatusBadRequest, "empty update")
		return
	}

	p, err := h.params.Apply(patch)
	if err != nil {
		if errors.Is(err, config.ErrInvalidParams) {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("admin: apply params", "err", err)
		jsonErr(w, http.StatusInternalServerError, "internal error")
		return
	}
	slog.Info("admin: params updated",
		"qtc_type", p.QTCType, "smoothing_rate", p.SmoothingRate,
		"quantisation_factor", p.QuantisationFactor)
	jsonResp(w, http.StatusOK, p)
}

func (h *handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.status.Status())
}

// Serve runs an HTTP server for handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("admin: listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

type errorResponse struct {
	Error string `json:"error"`
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
