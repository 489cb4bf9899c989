package swagger_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/epiqlabs/epiq/internal/adapters/http/swagger"
)

func TestSwagger(t *testing.T) {
	Convey("Given the docs routes", t, func() {
		mux := http.NewServeMux()
		swagger.Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("GET /api-docs serves the ReDoc page", func() {
			resp, err := http.Get(srv.URL + "/api-docs")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(resp.Header.Get("Content-Type"), ShouldContainSubstring, "text/html")

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, "Redoc.init('/openapi.yaml'")
		})

		Convey("GET /openapi.yaml serves the spec", func() {
			resp, err := http.Get(srv.URL + "/openapi.yaml")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			body, err := io.ReadAll(resp.Body)
			So(err, ShouldBeNil)
			So(string(body), ShouldContainSubstring, "openapi: 3.0.3")
			So(string(body), ShouldContainSubstring, "/episodes/top")
			So(string(body), ShouldContainSubstring, "/fits/latest")
		})
	})

	Convey("The embedded spec is not empty", t, func() {
		So(len(swagger.OpenAPI), ShouldBeGreaterThan, 0)
	})

	Convey("Registering on a nil mux panics", t, func() {
		So(func() { swagger.Register(context.Background(), nil) }, ShouldPanic)
	})
}
