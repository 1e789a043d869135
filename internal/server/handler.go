package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jellydator/ttlcache/v3"

	"github.com/edgemaps/districtd/internal/engine"
	"github.com/edgemaps/districtd/internal/metrics"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

type BatchRequest struct {
	Points []engine.Point `json:"points"`
}

type BatchResponse struct {
	Results []engine.Result `json:"results"`
}

type StatsResponse struct {
	engine.Stats
	DistrictsByState map[string]uint64 `json:"districts_by_state"`
}

type Handler struct {
	log *slog.Logger
	cfg Config

	engine    *engine.Engine
	respCache *ttlcache.Cache[string, engine.Result]
}

func NewHandler(log *slog.Logger, cfg Config, respCache *ttlcache.Cache[string, engine.Result]) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handler config validation failed: %w", err)
	}
	return &Handler{
		log:       log,
		cfg:       cfg,
		engine:    cfg.Engine,
		respCache: respCache,
	}, nil
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.healthzHandler)
	r.Get("/v1/lookup", h.lookupHandler)
	r.Post("/v1/lookup/batch", h.batchHandler)
	r.Get("/v1/stats", h.statsHandler)

	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

func (h *Handler) healthzHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) lookupHandler(w http.ResponseWriter, r *http.Request) {
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "lat must be a number")
		return
	}
	lng, err := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "lng must be a number")
		return
	}

	// Coordinates within ~1 meter share a cache slot.
	key := fmt.Sprintf("%.5f,%.5f", lat, lng)
	if h.respCache != nil {
		if item := h.respCache.Get(key); item != nil {
			metrics.HTTPResponseCacheHits.Inc()
			h.writeJSON(w, http.StatusOK, item.Value())
			return
		}
	}

	res := h.engine.Lookup(r.Context(), lat, lng)
	if res.Kind == engine.KindError {
		h.writeJSON(w, statusForError(res.Err.Kind), res)
		return
	}
	if h.respCache != nil {
		h.respCache.Set(key, res, ttlcache.DefaultTTL)
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) batchHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.engine.LookupBatch(r.Context(), req.Points)
	if err != nil {
		if errors.Is(err, engine.ErrShuttingDown) {
			h.writeJSONError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		h.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, BatchResponse{Results: results})
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	byState, err := h.engine.CountByState(r.Context())
	if err != nil {
		h.log.Error("failed to count districts by state", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	h.writeJSON(w, http.StatusOK, StatsResponse{
		Stats:            h.engine.Stats(),
		DistrictsByState: byState,
	})
}

func statusForError(kind engine.ErrorKind) int {
	switch kind {
	case engine.ErrKindCoordinateOutOfRange, engine.ErrKindCoordinateNotFinite:
		return http.StatusBadRequest
	case engine.ErrKindShuttingDown:
		return http.StatusServiceUnavailable
	case engine.ErrKindCancelled:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
