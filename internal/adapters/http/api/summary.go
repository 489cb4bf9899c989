package api

import (
	"net/http"

	"github.com/epiqlabs/epiq/internal/domain/mcmc"
)

// SummaryHandler serves the full posterior diagnostics table.
type SummaryHandler struct {
	deps Dependencies
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps Dependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

type summaryResponse struct {
	Parameters []mcmc.Stat    `json:"parameters"`
	Warnings   []mcmc.Warning `json:"warnings"`
}

// HandleSummary handles GET /summary requests. The response lists every
// model parameter with posterior statistics and convergence diagnostics.
func (h *SummaryHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	stats, warnings, err := h.deps.Diagnostics(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if warnings == nil {
		warnings = []mcmc.Warning{}
	}
	writeJSON(w, http.StatusOK, summaryResponse{Parameters: stats, Warnings: warnings})
}
