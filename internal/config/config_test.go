package config_test

import (
	"testing"

	"github.com/epiqlabs/epiq/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.DataDir, convey.ShouldEqual, "./data")
			convey.So(cfg.Draws, convey.ShouldEqual, 2000)
			convey.So(cfg.Tune, convey.ShouldEqual, 1000)
			convey.So(cfg.Chains, convey.ShouldBeLessThanOrEqualTo, 4)
			convey.So(cfg.Chains, convey.ShouldBeGreaterThan, 0)
			convey.So(cfg.TargetAccept, convey.ShouldEqual, 0.9)
			convey.So(cfg.Seed, convey.ShouldEqual, 42)
			convey.So(cfg.MaxTreeDepth, convey.ShouldEqual, 10)
			convey.So(cfg.RatingLower, convey.ShouldEqual, -0.5)
			convey.So(cfg.RatingUpper, convey.ShouldEqual, 10.5)
			convey.So(cfg.TMDBBaseURL, convey.ShouldEqual, "https://api.themoviedb.org/3")
			convey.So(cfg.FitQueueSize, convey.ShouldEqual, 4)
			convey.So(cfg.MaxTopLimit, convey.ShouldEqual, 100)
		})

		convey.Convey("Then column names should match the common export layout", func() {
			convey.So(cfg.RatingField, convey.ShouldEqual, "vote_average")
			convey.So(cfg.SeasonField, convey.ShouldEqual, "season_number")
			convey.So(cfg.EpisodeField, convey.ShouldEqual, "episode_number")
			convey.So(cfg.VotesField, convey.ShouldEqual, "vote_count")
		})
	})
}
