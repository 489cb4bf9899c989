package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/epiqlabs/epiq/internal/domain/dataset"
)

// defaultTopLimit applies when GET /episodes/top has no limit parameter.
const defaultTopLimit = 10

// EpisodesHandler registers episodes and serves the quality ranking.
type EpisodesHandler struct {
	deps     Dependencies
	maxLimit int
}

// NewEpisodesHandler creates a new episodes handler.
func NewEpisodesHandler(deps Dependencies, maxLimit int) *EpisodesHandler {
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &EpisodesHandler{deps: deps, maxLimit: maxLimit}
}

// registerRequest mirrors the OpenAPI schema for POST /episodes.
// Rating and votes are optional: a missing rating registers the episode
// as unobserved, a missing vote count defaults to 1.
type registerRequest struct {
	Season  int               `json:"season"`
	Episode int               `json:"episode_number"`
	Rating  *float64          `json:"vote_average,omitempty"`
	Votes   *int64            `json:"vote_count,omitempty"`
	Extra   map[string]string `json:"extra,omitempty"`
}

type registerResponse struct {
	Status   string `json:"status"`
	Season   int    `json:"season"`
	Episode  int    `json:"episode_number"`
	Observed bool   `json:"observed"`
}

// HandleRegister handles POST /episodes requests. Registration only
// appends to the dataset; a refit request makes the episode count.
func (h *EpisodesHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if req.Season <= 0 || req.Episode <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: season and episode_number must be positive", ErrBadRequest))
		return
	}

	rec := dataset.Record{Season: req.Season, Episode: req.Episode, Votes: 1, Extra: req.Extra}
	if req.Rating != nil {
		rec.Rating = *req.Rating
		rec.Observed = true
	}
	if req.Votes != nil {
		rec.Votes = *req.Votes
	}

	if err := h.deps.RegisterEpisode(r.Context(), rec); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, registerResponse{
		Status:   "registered",
		Season:   rec.Season,
		Episode:  rec.Episode,
		Observed: rec.Observed,
	})
}

// HandleTop handles GET /episodes/top?limit=N requests.
func (h *EpisodesHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := defaultTopLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: limit %q", ErrBadRequest, raw))
			return
		}
		limit = n
	}
	if limit > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%w: limit above %d", ErrBadRequest, h.maxLimit))
		return
	}

	entries, err := h.deps.TopEpisodes(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
