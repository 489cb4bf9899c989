package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SeasonsHandler serves per-season posterior summaries.
type SeasonsHandler struct {
	deps Dependencies
}

// NewSeasonsHandler creates a new seasons handler.
func NewSeasonsHandler(deps Dependencies) *SeasonsHandler {
	return &SeasonsHandler{deps: deps}
}

// HandleSeason handles GET /seasons/{season}/episodes requests.
func (h *SeasonsHandler) HandleSeason(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/seasons/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "episodes" {
		http.NotFound(w, r)
		return
	}
	season, err := strconv.Atoi(parts[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: season %q", ErrBadRequest, parts[0]))
		return
	}

	summary, err := h.deps.SeasonEpisodes(r.Context(), season)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
