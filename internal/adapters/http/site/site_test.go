package site_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/epiqlabs/epiq/internal/adapters/http/site"
)

func TestSite(t *testing.T) {
	Convey("Given the embedded site mounted at root", t, func() {
		mux := http.NewServeMux()
		site.Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("GET / serves the prediction form", func() {
			resp, err := http.Get(srv.URL + "/")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, `action="/predict"`)
			So(string(body), ShouldContainSubstring, `name="season"`)
			So(string(body), ShouldContainSubstring, `name="episode_number"`)
		})

		Convey("GET of a missing file is a 404", func() {
			resp, err := http.Get(srv.URL + "/nope.html")
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("Registering on a nil mux panics", t, func() {
		So(func() { site.Register(context.Background(), nil) }, ShouldPanic)
	})
}
