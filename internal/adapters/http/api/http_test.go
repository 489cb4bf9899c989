package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/epiqlabs/epiq/internal/adapters/fit/queue"
	"github.com/epiqlabs/epiq/internal/adapters/http/api"
	"github.com/epiqlabs/epiq/internal/adapters/repository"
	"github.com/epiqlabs/epiq/internal/adapters/repository/fithistory"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/infer"
	"github.com/epiqlabs/epiq/internal/domain/mcmc"
)

// stubDeps implements api.Dependencies with canned responses.
type stubDeps struct {
	predict    infer.EpisodeSummary
	predictErr error

	season    infer.SeasonSummary
	seasonErr error

	top    []repository.Entry
	topErr error

	registered  []dataset.Record
	registerErr error

	fitJob queue.Job
	fitOK  bool

	history   []fithistory.Record
	latest    fithistory.Record
	latestErr error

	stats    []mcmc.Stat
	warnings []mcmc.Warning
	diagErr  error
}

func (s *stubDeps) Predict(_ context.Context, season, episode int) (infer.EpisodeSummary, error) {
	return s.predict, s.predictErr
}

func (s *stubDeps) SeasonEpisodes(_ context.Context, season int) (infer.SeasonSummary, error) {
	return s.season, s.seasonErr
}

func (s *stubDeps) TopEpisodes(_ context.Context, limit int) ([]repository.Entry, error) {
	if s.topErr != nil {
		return nil, s.topErr
	}
	if limit < len(s.top) {
		return s.top[:limit], nil
	}
	return s.top, nil
}

func (s *stubDeps) RegisterEpisode(_ context.Context, rec dataset.Record) error {
	if s.registerErr != nil {
		return s.registerErr
	}
	s.registered = append(s.registered, rec)
	return nil
}

func (s *stubDeps) RequestFit(_ context.Context, reason string) (queue.Job, bool) {
	if !s.fitOK {
		return queue.Job{}, false
	}
	job := s.fitJob
	job.Reason = reason
	return job, true
}

func (s *stubDeps) FitHistory(_ context.Context, limit int) ([]fithistory.Record, error) {
	if limit < len(s.history) {
		return s.history[:limit], nil
	}
	return s.history, nil
}

func (s *stubDeps) LatestFit(_ context.Context) (fithistory.Record, error) {
	return s.latest, s.latestErr
}

func (s *stubDeps) Diagnostics(_ context.Context) ([]mcmc.Stat, []mcmc.Warning, error) {
	return s.stats, s.warnings, s.diagErr
}

func (s *stubDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"episodes": 12, "fitted": true}
}

func newTestServer(deps api.Dependencies) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, 50).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPredictEndpoint(t *testing.T) {
	Convey("Given a server with a fitted model", t, func() {
		deps := &stubDeps{
			predict: infer.EpisodeSummary{
				Season:  2,
				Episode: 5,
				Votes:   120,
				Quality: mcmc.Stat{Name: "theta[7]", Mean: 8.1, Median: 8.09, Q3: 7.6, Q97: 8.6},
			},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET with season and episode_number returns the summary", func() {
			resp, err := http.Get(srv.URL + "/predict?season=2&episode_number=5")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got infer.EpisodeSummary
			decodeBody(t, resp, &got)
			So(got.Season, ShouldEqual, 2)
			So(got.Episode, ShouldEqual, 5)
			So(got.Quality.Mean, ShouldAlmostEqual, 8.1, 1e-9)
		})

		Convey("GET preferring HTML returns a result page", func() {
			req, err := http.NewRequest(http.MethodGet, srv.URL+"/predict?season=2&episode_number=5", nil)
			So(err, ShouldBeNil)
			req.Header.Set("Accept", "text/html")

			resp, err := http.DefaultClient.Do(req)
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldContainSubstring, "text/html")
		})

		Convey("GET without parameters redirects to the form", func() {
			client := &http.Client{
				CheckRedirect: func(*http.Request, []*http.Request) error {
					return http.ErrUseLastResponse
				},
			}
			resp, err := client.Get(srv.URL + "/predict")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusFound)
			So(resp.Header.Get("Location"), ShouldEqual, "/")
		})

		Convey("GET with a malformed season is a 400", func() {
			resp, err := http.Get(srv.URL + "/predict?season=two&episode_number=5")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST with a JSON body returns the summary", func() {
			body := strings.NewReader(`{"season": 2, "episode_number": 5}`)
			resp, err := http.Post(srv.URL+"/predict", "application/json", body)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got infer.EpisodeSummary
			decodeBody(t, resp, &got)
			So(got.Votes, ShouldEqual, 120)
		})

		Convey("POST without coordinates is a 400", func() {
			resp, err := http.Post(srv.URL+"/predict", "application/json", strings.NewReader(`{}`))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a server whose model is not fitted yet", t, func() {
		deps := &stubDeps{predictErr: infer.ErrNotFitted}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /predict answers 503", func() {
			resp, err := http.Get(srv.URL + "/predict?season=1&episode_number=1")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)

			var got map[string]string
			decodeBody(t, resp, &got)
			So(got["code"], ShouldEqual, "not_fitted")
		})
	})

	Convey("Given a server that cannot find the episode", t, func() {
		deps := &stubDeps{predictErr: infer.ErrEpisodeNotFound}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /predict answers 404", func() {
			resp, err := http.Get(srv.URL + "/predict?season=1&episode_number=99")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestEpisodesEndpoints(t *testing.T) {
	Convey("Given a server accepting registrations", t, func() {
		deps := &stubDeps{
			top: []repository.Entry{
				{Rank: 1, Season: 1, Episode: 3, Quality: 8.9, Rating: 9.0, Votes: 300},
				{Rank: 2, Season: 2, Episode: 1, Quality: 8.4, Rating: 8.5, Votes: 210},
				{Rank: 3, Season: 1, Episode: 1, Quality: 8.1, Rating: 8.0, Votes: 180},
			},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("POST /episodes with a rating registers an observed episode", func() {
			body := strings.NewReader(`{"season": 3, "episode_number": 1, "vote_average": 7.8, "vote_count": 44}`)
			resp, err := http.Post(srv.URL+"/episodes", "application/json", body)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)

			var got map[string]any
			decodeBody(t, resp, &got)
			So(got["status"], ShouldEqual, "registered")
			So(got["observed"], ShouldEqual, true)

			So(deps.registered, ShouldHaveLength, 1)
			So(deps.registered[0].Observed, ShouldBeTrue)
			So(deps.registered[0].Rating, ShouldAlmostEqual, 7.8, 1e-9)
			So(deps.registered[0].Votes, ShouldEqual, 44)
		})

		Convey("POST /episodes without a rating registers an unobserved episode with one vote", func() {
			body := strings.NewReader(`{"season": 3, "episode_number": 2}`)
			resp, err := http.Post(srv.URL+"/episodes", "application/json", body)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)

			So(deps.registered, ShouldHaveLength, 1)
			So(deps.registered[0].Observed, ShouldBeFalse)
			So(deps.registered[0].Votes, ShouldEqual, 1)
		})

		Convey("POST /episodes with non-positive coordinates is a 400", func() {
			body := strings.NewReader(`{"season": 0, "episode_number": 1}`)
			resp, err := http.Post(srv.URL+"/episodes", "application/json", body)
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /episodes/top returns the ranking", func() {
			resp, err := http.Get(srv.URL + "/episodes/top?limit=2")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got []repository.Entry
			decodeBody(t, resp, &got)
			So(got, ShouldHaveLength, 2)
			So(got[0].Rank, ShouldEqual, 1)
			So(got[0].Quality, ShouldAlmostEqual, 8.9, 1e-9)
		})

		Convey("GET /episodes/top rejects a limit above the cap", func() {
			resp, err := http.Get(srv.URL + "/episodes/top?limit=9999")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /episodes/top rejects a non-numeric limit", func() {
			resp, err := http.Get(srv.URL + "/episodes/top?limit=lots")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a server rejecting a duplicate registration", t, func() {
		deps := &stubDeps{registerErr: dataset.ErrDuplicateEpisode}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("POST /episodes answers 409", func() {
			body := strings.NewReader(`{"season": 1, "episode_number": 1}`)
			resp, err := http.Post(srv.URL+"/episodes", "application/json", body)
			So(err, ShouldBeNil)

			var got map[string]string
			decodeBody(t, resp, &got)
			So(resp.StatusCode, ShouldEqual, http.StatusConflict)
			So(got["code"], ShouldEqual, "duplicate_episode")
		})
	})
}

func TestSeasonsEndpoint(t *testing.T) {
	Convey("Given a server with season summaries", t, func() {
		deps := &stubDeps{
			season: infer.SeasonSummary{
				Season:  2,
				Code:    1,
				Quality: mcmc.Stat{Name: "mu_s[1]", Mean: 7.9},
				Episodes: []infer.EpisodeSummary{
					{Season: 2, Episode: 1, Quality: mcmc.Stat{Mean: 7.7}},
					{Season: 2, Episode: 2, Quality: mcmc.Stat{Mean: 8.2}},
				},
			},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /seasons/{season}/episodes returns the season", func() {
			resp, err := http.Get(srv.URL + "/seasons/2/episodes")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got infer.SeasonSummary
			decodeBody(t, resp, &got)
			So(got.Season, ShouldEqual, 2)
			So(got.Episodes, ShouldHaveLength, 2)
		})

		Convey("GET with a malformed season is a 400", func() {
			resp, err := http.Get(srv.URL + "/seasons/two/episodes")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET with a malformed path is a 404", func() {
			resp, err := http.Get(srv.URL + "/seasons/2/foo")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Given a server without the requested season", t, func() {
		deps := &stubDeps{seasonErr: infer.ErrSeasonNotFound}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET answers 404 with a season_not_found code", func() {
			resp, err := http.Get(srv.URL + "/seasons/9/episodes")
			So(err, ShouldBeNil)

			var got map[string]string
			decodeBody(t, resp, &got)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(got["code"], ShouldEqual, "season_not_found")
		})
	})
}

func TestFitsEndpoints(t *testing.T) {
	Convey("Given a server with fit capacity", t, func() {
		deps := &stubDeps{
			fitOK:  true,
			fitJob: queue.Job{ID: "job-1", Requested: time.Now()},
			history: []fithistory.Record{
				{ID: "fit-2", Reason: "manual", Episodes: 12},
				{ID: "fit-1", Reason: "startup", Episodes: 10},
			},
			latest: fithistory.Record{ID: "fit-2", Reason: "manual", Episodes: 12},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("POST /fits accepts a refit request", func() {
			resp, err := http.Post(srv.URL+"/fits?reason=new-data", "application/json", nil)
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)

			var got queue.Job
			decodeBody(t, resp, &got)
			So(got.ID, ShouldEqual, "job-1")
			So(got.Reason, ShouldEqual, "new-data")
		})

		Convey("POST /fits without a reason defaults to manual", func() {
			resp, err := http.Post(srv.URL+"/fits", "application/json", nil)
			So(err, ShouldBeNil)

			var got queue.Job
			decodeBody(t, resp, &got)
			So(got.Reason, ShouldEqual, "manual")
		})

		Convey("GET /fits lists past fits newest first", func() {
			resp, err := http.Get(srv.URL + "/fits")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got []fithistory.Record
			decodeBody(t, resp, &got)
			So(got, ShouldHaveLength, 2)
			So(got[0].ID, ShouldEqual, "fit-2")
		})

		Convey("GET /fits honours the limit parameter", func() {
			resp, err := http.Get(srv.URL + "/fits?limit=1")
			So(err, ShouldBeNil)

			var got []fithistory.Record
			decodeBody(t, resp, &got)
			So(got, ShouldHaveLength, 1)
		})

		Convey("GET /fits/latest returns the most recent fit", func() {
			resp, err := http.Get(srv.URL + "/fits/latest")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got fithistory.Record
			decodeBody(t, resp, &got)
			So(got.ID, ShouldEqual, "fit-2")
		})
	})

	Convey("Given a server whose fit queue is full", t, func() {
		deps := &stubDeps{fitOK: false}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("POST /fits answers 429", func() {
			resp, err := http.Post(srv.URL+"/fits", "application/json", nil)
			So(err, ShouldBeNil)

			var got map[string]string
			decodeBody(t, resp, &got)
			So(resp.StatusCode, ShouldEqual, http.StatusTooManyRequests)
			So(got["code"], ShouldEqual, "queue_full")
		})
	})

	Convey("Given a server with no recorded fits", t, func() {
		deps := &stubDeps{latestErr: fithistory.ErrNoFits}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /fits/latest answers 404", func() {
			resp, err := http.Get(srv.URL + "/fits/latest")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("GET /fits answers an empty list", func() {
			resp, err := http.Get(srv.URL + "/fits")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got []fithistory.Record
			decodeBody(t, resp, &got)
			So(got, ShouldBeEmpty)
		})
	})
}

func TestSummaryAndStatsEndpoints(t *testing.T) {
	Convey("Given a server with diagnostics", t, func() {
		deps := &stubDeps{
			stats: []mcmc.Stat{
				{Name: "mu_0", Mean: 7.8, RHat: 1.001, ESS: 1800},
				{Name: "theta[0]", Mean: 8.0, RHat: 1.002, ESS: 1500},
			},
			warnings: []mcmc.Warning{{Kind: mcmc.WarningDivergences, Message: "3 divergent transitions"}},
		}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /summary returns parameters and warnings", func() {
			resp, err := http.Get(srv.URL + "/summary")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got struct {
				Parameters []mcmc.Stat    `json:"parameters"`
				Warnings   []mcmc.Warning `json:"warnings"`
			}
			decodeBody(t, resp, &got)
			So(got.Parameters, ShouldHaveLength, 2)
			So(got.Parameters[0].Name, ShouldEqual, "mu_0")
			So(got.Warnings, ShouldHaveLength, 1)
		})

		Convey("GET /stats returns the service snapshot", func() {
			resp, err := http.Get(srv.URL + "/stats")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got map[string]any
			decodeBody(t, resp, &got)
			So(got["fitted"], ShouldEqual, true)
		})

		Convey("GET /healthz answers ok", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var got map[string]string
			decodeBody(t, resp, &got)
			So(got["status"], ShouldEqual, "ok")
		})
	})

	Convey("Given a server that has not fitted yet", t, func() {
		deps := &stubDeps{diagErr: infer.ErrNotFitted}
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("GET /summary answers 503", func() {
			resp, err := http.Get(srv.URL + "/summary")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}
