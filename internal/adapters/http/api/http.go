// Package api declares HTTP contracts and route registration helpers
// for the episode-quality service.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/epiqlabs/epiq/internal/adapters/fit/queue"
	"github.com/epiqlabs/epiq/internal/adapters/repository"
	"github.com/epiqlabs/epiq/internal/adapters/repository/fithistory"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/infer"
	"github.com/epiqlabs/epiq/internal/domain/mcmc"
)

// Dependencies required by the HTTP handlers. Using an interface bundle
// keeps the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	Predict(ctx context.Context, season, episode int) (infer.EpisodeSummary, error)
	SeasonEpisodes(ctx context.Context, season int) (infer.SeasonSummary, error)
	TopEpisodes(ctx context.Context, limit int) ([]repository.Entry, error)
	RegisterEpisode(ctx context.Context, rec dataset.Record) error
	RequestFit(ctx context.Context, reason string) (queue.Job, bool)
	FitHistory(ctx context.Context, limit int) ([]fithistory.Record, error)
	LatestFit(ctx context.Context) (fithistory.Record, error)
	Diagnostics(ctx context.Context) ([]mcmc.Stat, []mcmc.Warning, error)
	GetStats() map[string]interface{}
}

// Server wires HTTP routes for the business API.
type Server struct {
	predictHandler  *PredictHandler
	episodesHandler *EpisodesHandler
	seasonsHandler  *SeasonsHandler
	fitsHandler     *FitsHandler
	summaryHandler  *SummaryHandler
	statsHandler    *StatsHandler
	healthHandler   *HealthHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, maxTopLimit int) *Server {
	return &Server{
		predictHandler:  NewPredictHandler(deps),
		episodesHandler: NewEpisodesHandler(deps, maxTopLimit),
		seasonsHandler:  NewSeasonsHandler(deps),
		fitsHandler:     NewFitsHandler(deps),
		summaryHandler:  NewSummaryHandler(deps),
		statsHandler:    NewStatsHandler(deps),
		healthHandler:   NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/predict", MetricsMiddleware(s.predictHandler.HandlePredict, "predict"))
	mux.HandleFunc("/episodes", MetricsMiddleware(s.episodesHandler.HandleRegister, "episodes"))
	mux.HandleFunc("/episodes/top", MetricsMiddleware(s.episodesHandler.HandleTop, "episodes_top"))
	mux.HandleFunc("/seasons/", MetricsMiddleware(s.seasonsHandler.HandleSeason, "seasons"))
	mux.HandleFunc("/fits", MetricsMiddleware(s.fitsHandler.HandleFits, "fits"))
	mux.HandleFunc("/fits/latest", MetricsMiddleware(s.fitsHandler.HandleLatest, "fits_latest"))
	mux.HandleFunc("/summary", MetricsMiddleware(s.summaryHandler.HandleSummary, "summary"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates core errors to the boundary's contract:
// bad addressing is 404, a missing fit is 503, duplicates are 409 and
// anything unrecognized is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, infer.ErrNotFitted):
		writeError(w, http.StatusServiceUnavailable, "not_fitted", err)
	case errors.Is(err, infer.ErrSeasonNotFound):
		writeError(w, http.StatusNotFound, "season_not_found", err)
	case errors.Is(err, infer.ErrEpisodeNotFound):
		writeError(w, http.StatusNotFound, "episode_not_found", err)
	case errors.Is(err, infer.ErrEpisodeIndex):
		writeError(w, http.StatusNotFound, "episode_index_out_of_range", err)
	case errors.Is(err, dataset.ErrDuplicateEpisode):
		writeError(w, http.StatusConflict, "duplicate_episode", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
