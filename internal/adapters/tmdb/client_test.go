package tmdb_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/epiqlabs/epiq/internal/adapters/tmdb"
)

// stubTMDB serves canned payloads for a two-season show.
func stubTMDB(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/tv", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("query") == "nothing" {
			_, _ = w.Write([]byte(`{"page":1,"results":[],"total_results":0}`))
			return
		}
		_, _ = w.Write([]byte(`{"page":1,"results":[
			{"id":42,"name":"Deep Space Drama","vote_average":8.1,"vote_count":900},
			{"id":43,"name":"Deep Space Drama: Aftershow","vote_average":6.0,"vote_count":20}
		],"total_results":2}`))
	})
	mux.HandleFunc("/tv/42", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":42,"name":"Deep Space Drama","seasons":[
			{"season_number":0,"episode_count":3},
			{"season_number":1,"episode_count":2},
			{"season_number":2,"episode_count":1}
		]}`))
	})
	mux.HandleFunc("/tv/42/season/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":100,"season_number":1,"episodes":[
			{"season_number":1,"episode_number":1,"name":"Pilot","air_date":"2020-01-01","vote_average":7.5,"vote_count":120},
			{"season_number":1,"episode_number":2,"name":"Contact","air_date":"2020-01-08","vote_average":8.2,"vote_count":95}
		]}`))
	})
	mux.HandleFunc("/tv/42/season/2", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":101,"season_number":2,"episodes":[
			{"season_number":2,"episode_number":1,"name":"Unaired","vote_average":0,"vote_count":0}
		]}`))
	})
	return httptest.NewServer(mux)
}

func TestClient(t *testing.T) {
	Convey("Given a TMDB client against a stub server", t, func() {
		srv := stubTMDB(t)
		defer srv.Close()
		ctx := context.Background()

		client, err := tmdb.New("test-key", srv.URL, "en-US")
		So(err, ShouldBeNil)

		Convey("When a show is searched", func() {
			show, err := client.SearchShow(ctx, "deep space")

			Convey("Then the first match wins", func() {
				So(err, ShouldBeNil)
				So(show.ID, ShouldEqual, 42)
				So(show.Name, ShouldEqual, "Deep Space Drama")
			})
		})

		Convey("When the search matches nothing", func() {
			_, err := client.SearchShow(ctx, "nothing")
			So(errors.Is(err, tmdb.ErrShowNotFound), ShouldBeTrue)
		})

		Convey("When show details are fetched", func() {
			details, err := client.GetShowDetails(ctx, 42)
			So(err, ShouldBeNil)
			So(len(details.Seasons), ShouldEqual, 3)
		})

		Convey("When a season is fetched", func() {
			season, err := client.GetSeasonDetails(ctx, 42, 1)
			So(err, ShouldBeNil)
			So(len(season.Episodes), ShouldEqual, 2)
			So(season.Episodes[1].VoteAverage, ShouldEqual, 8.2)
		})

		Convey("When all episodes are fetched by show name", func() {
			details, records, err := client.FetchEpisodes(ctx, "deep space")
			So(err, ShouldBeNil)
			So(details.ID, ShouldEqual, 42)

			Convey("Then specials are skipped and rows flattened in order", func() {
				So(len(records), ShouldEqual, 3)
				So(records[0].Season, ShouldEqual, 1)
				So(records[0].Episode, ShouldEqual, 1)
				So(records[0].Extra["title"], ShouldEqual, "Pilot")
				So(records[2].Season, ShouldEqual, 2)
			})

			Convey("Then unaired episodes come back unobserved", func() {
				So(records[0].Observed, ShouldBeTrue)
				So(records[2].Observed, ShouldBeFalse)
				So(records[2].Votes, ShouldEqual, 0)
			})
		})

		Convey("When inputs are invalid", func() {
			_, err := client.SearchShow(ctx, "  ")
			So(errors.Is(err, tmdb.ErrBadRequest), ShouldBeTrue)

			_, err = client.GetSeasonDetails(ctx, 42, 0)
			So(errors.Is(err, tmdb.ErrBadRequest), ShouldBeTrue)

			_, err = tmdb.New("", srv.URL, "")
			So(errors.Is(err, tmdb.ErrMissingAPIKey), ShouldBeTrue)
		})

		Convey("When the upstream rejects the call", func() {
			bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer bad.Close()

			badClient, err := tmdb.New("test-key", bad.URL, "")
			So(err, ShouldBeNil)
			_, err = badClient.GetShowDetails(ctx, 42)
			So(errors.Is(err, tmdb.ErrUpstream), ShouldBeTrue)
		})
	})
}
