package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/epiqlabs/epiq/internal/adapters/repository/fithistory"
)

// defaultFitHistoryLimit applies when GET /fits has no limit parameter.
const defaultFitHistoryLimit = 20

// FitsHandler triggers refits and serves the fit history.
type FitsHandler struct {
	deps Dependencies
}

// NewFitsHandler creates a new fits handler.
func NewFitsHandler(deps Dependencies) *FitsHandler {
	return &FitsHandler{deps: deps}
}

// HandleFits handles POST /fits (request a refit) and GET /fits (list
// past fits, newest first).
func (h *FitsHandler) HandleFits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRequest(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *FitsHandler) handleRequest(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual"
	}

	job, ok := h.deps.RequestFit(r.Context(), reason)
	if !ok {
		writeError(w, http.StatusTooManyRequests, "queue_full", ErrBackpressure)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *FitsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultFitHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit %q", ErrBadRequest, raw))
			return
		}
		limit = n
	}

	records, err := h.deps.FitHistory(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []fithistory.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleLatest handles GET /fits/latest requests.
func (h *FitsHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	record, err := h.deps.LatestFit(r.Context())
	if err != nil {
		if errors.Is(err, fithistory.ErrNoFits) {
			writeError(w, http.StatusNotFound, "no_fits", err)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
