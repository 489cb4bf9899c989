package service_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/epiqlabs/epiq/internal/app"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	"github.com/epiqlabs/epiq/internal/domain/infer"
	"github.com/epiqlabs/epiq/pkg/logger"
)

func testRecords() []dataset.Record {
	return []dataset.Record{
		{Season: 1, Episode: 1, Rating: 7.2, Observed: true, Votes: 150},
		{Season: 1, Episode: 2, Rating: 8.1, Observed: true, Votes: 220},
		{Season: 1, Episode: 3, Rating: 7.8, Observed: true, Votes: 90},
		{Season: 2, Episode: 1, Rating: 6.9, Observed: true, Votes: 130},
		{Season: 2, Episode: 2, Rating: 8.6, Observed: true, Votes: 310},
	}
}

// fastService returns a started service with sampler settings small
// enough for test runs.
func fastService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	_ = logger.Init()
	base := []service.Option{
		service.WithSamplerConfig(200, 200, 2, 0.85, 7),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a fresh service", t, func() {
		ctx := context.Background()
		svc := fastService(t)

		Convey("Then queries before any fit fail with the not-fitted error", func() {
			_, err := svc.Predict(ctx, 1, 1)
			So(errors.Is(err, infer.ErrNotFitted), ShouldBeTrue)

			_, err = svc.SeasonEpisodes(ctx, 1)
			So(errors.Is(err, infer.ErrNotFitted), ShouldBeTrue)

			_, err = svc.TopEpisodes(ctx, 3)
			So(errors.Is(err, infer.ErrNotFitted), ShouldBeTrue)

			_, _, err = svc.Diagnostics(ctx)
			So(errors.Is(err, infer.ErrNotFitted), ShouldBeTrue)
		})

		Convey("Then fitting before any ingest fails", func() {
			_, err := svc.Fit(ctx)
			So(errors.Is(err, service.ErrNoDataset), ShouldBeTrue)
		})

		Convey("When a dataset is ingested", func() {
			So(svc.Ingest(ctx, testRecords()), ShouldBeNil)
			So(svc.Dataset().Len(), ShouldEqual, 5)

			Convey("Then a registered episode lands in the dataset only", func() {
				err := svc.RegisterEpisode(ctx, dataset.Record{Season: 2, Episode: 3})
				So(err, ShouldBeNil)
				So(svc.Dataset().Len(), ShouldEqual, 6)
				So(svc.Dataset().At(5).Observed, ShouldBeFalse)
				So(svc.Dataset().At(5).Votes, ShouldEqual, 1)

				Convey("And registering it again is rejected", func() {
					err := svc.RegisterEpisode(ctx, dataset.Record{Season: 2, Episode: 3})
					So(errors.Is(err, dataset.ErrDuplicateEpisode), ShouldBeTrue)
				})
			})

			Convey("Then stats reflect the dataset", func() {
				stats := svc.GetStats()
				So(stats["episodes"], ShouldEqual, 5)
				So(stats["seasons"], ShouldEqual, 2)
				So(stats["fitted"], ShouldBeFalse)
			})
		})
	})
}

func TestServiceFitAndQuery(t *testing.T) {
	Convey("Given a service with an ingested dataset", t, func() {
		ctx := context.Background()
		svc := fastService(t)
		So(svc.Ingest(ctx, testRecords()), ShouldBeNil)

		Convey("When a synchronous fit completes", func() {
			result, err := svc.Fit(ctx)
			So(err, ShouldBeNil)
			So(result.NumEpisodes(), ShouldEqual, 5)

			Convey("Then episode predictions work by pair and by position", func() {
				byPair, err := svc.Predict(ctx, 1, 2)
				So(err, ShouldBeNil)
				So(byPair.Quality.Mean, ShouldBeBetween, -0.5, 10.5)
				So(byPair.Quality.Q3, ShouldBeLessThanOrEqualTo, byPair.Quality.Median)
				So(byPair.Quality.Median, ShouldBeLessThanOrEqualTo, byPair.Quality.Q97)

				byPos, err := svc.EpisodeAt(ctx, 1, 1)
				So(err, ShouldBeNil)
				So(byPos, ShouldResemble, byPair)
			})

			Convey("Then an out-of-range position fails without clamping", func() {
				_, err := svc.EpisodeAt(ctx, 1, 3)
				So(errors.Is(err, infer.ErrEpisodeIndex), ShouldBeTrue)
			})

			Convey("Then unknown seasons and episodes are distinct errors", func() {
				_, err := svc.Predict(ctx, 9, 1)
				So(errors.Is(err, infer.ErrEpisodeNotFound), ShouldBeTrue)

				_, err = svc.SeasonEpisodes(ctx, 9)
				So(errors.Is(err, infer.ErrSeasonNotFound), ShouldBeTrue)
			})

			Convey("Then a season query returns every episode in order", func() {
				season, err := svc.SeasonEpisodes(ctx, 1)
				So(err, ShouldBeNil)
				So(len(season.Episodes), ShouldEqual, 3)
				So(season.Episodes[0].Episode, ShouldEqual, 1)
				So(season.Episodes[2].Episode, ShouldEqual, 3)
			})

			Convey("Then the ranking store serves top episodes", func() {
				top, err := svc.TopEpisodes(ctx, 2)
				So(err, ShouldBeNil)
				So(len(top), ShouldEqual, 2)
				So(top[0].Quality, ShouldBeGreaterThanOrEqualTo, top[1].Quality)

				entry, err := svc.EpisodeRank(ctx, top[0].Season, top[0].Episode)
				So(err, ShouldBeNil)
				So(entry.Rank, ShouldEqual, 1)
			})

			Convey("Then diagnostics cover every model parameter", func() {
				stats, _, err := svc.Diagnostics(ctx)
				So(err, ShouldBeNil)
				// 3 hyper + 2*2 season + 5 episode parameters.
				So(len(stats), ShouldEqual, 12)
			})

			Convey("Then repeated queries return identical summaries", func() {
				first, err := svc.Predict(ctx, 2, 2)
				So(err, ShouldBeNil)
				second, err := svc.Predict(ctx, 2, 2)
				So(err, ShouldBeNil)
				So(second, ShouldResemble, first)
			})
		})

		Convey("When an unobserved episode joins and the model refits", func() {
			So(svc.RegisterEpisode(ctx, dataset.Record{Season: 2, Episode: 3}), ShouldBeNil)
			_, err := svc.Fit(ctx)
			So(err, ShouldBeNil)

			Convey("Then it borrows strength from its season", func() {
				season, err := svc.SeasonEpisodes(ctx, 2)
				So(err, ShouldBeNil)
				So(len(season.Episodes), ShouldEqual, 3)

				newcomer := season.Episodes[2]
				So(newcomer.Observed, ShouldBeFalse)
				// Pulled toward the season mean, not toward the scale edges.
				So(newcomer.Quality.Mean, ShouldBeBetween, 4.0, 10.0)
				// And less certain than a well-observed episode.
				outlier := season.Episodes[1] // 8.6 at 310 votes
				newWidth := newcomer.Quality.Q97 - newcomer.Quality.Q3
				outWidth := outlier.Quality.Q97 - outlier.Quality.Q3
				So(newWidth, ShouldBeGreaterThan, outWidth)
			})
		})
	})
}
