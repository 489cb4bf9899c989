package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// PredictHandler answers episode quality predictions.
type PredictHandler struct {
	deps Dependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// predictRequest mirrors the OpenAPI schema for POST /predict.
type predictRequest struct {
	Season  int `json:"season"`
	Episode int `json:"episode_number"`
}

// HandlePredict handles GET and POST /predict requests.
//
// GET without parameters redirects to the prediction form at /. GET
// with season and episode_number answers either an HTML result page or
// JSON, following the Accept header. POST takes a JSON body and always
// answers JSON.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodPost:
		h.handlePost(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *PredictHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("season") == "" && q.Get("episode_number") == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	season, err := strconv.Atoi(q.Get("season"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: season %q", ErrBadRequest, q.Get("season")))
		return
	}
	episode, err := strconv.Atoi(q.Get("episode_number"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: episode_number %q", ErrBadRequest, q.Get("episode_number")))
		return
	}

	summary, err := h.deps.Predict(r.Context(), season, episode)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, resultPageHTML,
			summary.Season, summary.Episode,
			summary.Quality.Mean, summary.Quality.Median,
			summary.Quality.Q3, summary.Quality.Q97,
			summary.Votes,
		)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *PredictHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	if req.Season == 0 || req.Episode == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: season and episode_number required", ErrBadRequest))
		return
	}

	summary, err := h.deps.Predict(r.Context(), req.Season, req.Episode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

const resultPageHTML = `<!doctype html>
<html>
<head><title>Prediction Result</title></head>
<body>
  <h2>Prediction for Season %d, Episode %d</h2>
  <table border="1" cellpadding="4">
    <tr><th>mean</th><th>median</th><th>3%%</th><th>97%%</th><th>votes</th></tr>
    <tr><td>%.3f</td><td>%.3f</td><td>%.3f</td><td>%.3f</td><td>%d</td></tr>
  </table>
  <br><a href="/">Try another prediction</a>
</body>
</html>
`
