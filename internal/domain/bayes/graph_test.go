package bayes_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/epiqlabs/epiq/internal/domain/bayes"
	"github.com/epiqlabs/epiq/internal/domain/dataset"
	. "github.com/smartystreets/goconvey/convey"
)

// gridDataset builds seasons x episodes rows with a constant rating.
func gridDataset(seasons, episodes int, rating float64, votes int64) *dataset.Dataset {
	var records []dataset.Record
	for s := 1; s <= seasons; s++ {
		for e := 1; e <= episodes; e++ {
			records = append(records, dataset.Record{
				Season: s, Episode: e, Rating: rating, Observed: true, Votes: votes,
			})
		}
	}
	ds, err := dataset.New(records)
	if err != nil {
		panic(err)
	}
	return ds
}

func TestBuild(t *testing.T) {
	Convey("Given a two-season dataset", t, func() {
		ds := gridDataset(2, 3, 8.0, 100)

		Convey("When building the graph", func() {
			g, err := bayes.Build(ds)

			Convey("Then it should expose the hierarchical shape", func() {
				So(err, ShouldBeNil)
				So(g.NumSeasons(), ShouldEqual, 2)
				So(g.NumEpisodes(), ShouldEqual, 6)
				So(g.NumObserved(), ShouldEqual, 6)
				So(g.Dim(), ShouldEqual, 3+2*2+6)
			})

			Convey("Then theta indices should trail the season blocks", func() {
				So(g.ThetaIndex(0), ShouldEqual, 3+2*2)
				So(g.ThetaIndex(5), ShouldEqual, g.Dim()-1)
			})

			Convey("Then parameter names should be stable", func() {
				So(g.ParamName(0), ShouldEqual, "mu_0")
				So(g.ParamName(1), ShouldEqual, "sigma_mu")
				So(g.ParamName(2), ShouldEqual, "tau_0")
				So(g.ParamName(3), ShouldEqual, "mu_s[0]")
				So(g.ParamName(5), ShouldEqual, "tau_s[0]")
				So(g.ParamName(g.ThetaIndex(4)), ShouldEqual, "theta[4]")
			})
		})

		Convey("When building from a nil dataset", func() {
			_, err := bayes.Build(nil)

			Convey("Then it should fail with ErrEmptyDataset", func() {
				So(errors.Is(err, bayes.ErrEmptyDataset), ShouldBeTrue)
			})
		})

		Convey("When building with inverted bounds", func() {
			_, err := bayes.Build(ds, bayes.WithBounds(10.5, -0.5))

			Convey("Then it should fail with ErrInvalidBounds", func() {
				So(errors.Is(err, bayes.ErrInvalidBounds), ShouldBeTrue)
			})
		})

		Convey("When the dataset has unobserved rows", func() {
			base := gridDataset(1, 2, 7.5, 50)
			withMissing, err := base.Append(dataset.Record{Season: 1, Episode: 3})
			So(err, ShouldBeNil)

			g, err := bayes.Build(withMissing)

			Convey("Then they add a latent parameter but no likelihood term", func() {
				So(err, ShouldBeNil)
				So(g.NumEpisodes(), ShouldEqual, 3)
				So(g.NumObserved(), ShouldEqual, 2)
			})
		})
	})
}

func TestConstrain(t *testing.T) {
	Convey("Given a built graph", t, func() {
		g, err := bayes.Build(gridDataset(2, 2, 8.0, 100))
		So(err, ShouldBeNil)

		Convey("When constraining the zero vector", func() {
			z := make([]float64, g.Dim())
			x := g.Constrain(z)

			Convey("Then bounded parameters should sit at the interval midpoint", func() {
				So(x[0], ShouldAlmostEqual, 5.0, 1e-12)
				So(x[3], ShouldAlmostEqual, 5.0, 1e-12)
				So(x[g.ThetaIndex(0)], ShouldAlmostEqual, 5.0, 1e-12)
			})

			Convey("Then positive parameters should map to one", func() {
				So(x[1], ShouldAlmostEqual, 1.0, 1e-12)
				So(x[2], ShouldAlmostEqual, 1.0, 1e-12)
			})
		})

		Convey("When constraining extreme coordinates", func() {
			z := make([]float64, g.Dim())
			for k := range z {
				z[k] = 40
			}
			x := g.Constrain(z)

			Convey("Then bounded parameters should stay inside the interval", func() {
				So(x[0], ShouldBeLessThanOrEqualTo, 10.5)
				So(x[0], ShouldBeGreaterThan, 10.4)
				So(x[g.ThetaIndex(0)], ShouldBeLessThanOrEqualTo, 10.5)
			})
		})
	})
}

func TestLogDensity(t *testing.T) {
	Convey("Given a built graph", t, func() {
		g, err := bayes.Build(gridDataset(2, 3, 8.0, 100))
		So(err, ShouldBeNil)

		Convey("When evaluating at the origin", func() {
			z := make([]float64, g.Dim())
			lp := g.LogDensity(z)

			Convey("Then the density should be finite", func() {
				So(math.IsInf(lp, 0), ShouldBeFalse)
				So(math.IsNaN(lp), ShouldBeFalse)
			})
		})

		Convey("When episode latents sit on the data", func() {
			near := make([]float64, g.Dim())
			far := make([]float64, g.Dim())
			// logit of (8.0 - lower)/width puts theta at 8.0
			at8 := math.Log((8.0 + 0.5) / (10.5 - 8.0))
			for i := 0; i < g.NumEpisodes(); i++ {
				near[g.ThetaIndex(i)] = at8
			}

			Convey("Then the density should beat latents at the midpoint", func() {
				So(g.LogDensity(near), ShouldBeGreaterThan, g.LogDensity(far))
			})
		})

		Convey("When two seasons carry identical data", func() {
			z := make([]float64, g.Dim())
			grad := make([]float64, g.Dim())
			rng := rand.New(rand.NewSource(11))
			for k := range z {
				z[k] = 0.3 * rng.NormFloat64()
			}
			// Mirror season blocks so the configuration is symmetric.
			z[4] = z[3]
			z[6] = z[5]
			for i := 3; i < 6; i++ {
				z[g.ThetaIndex(i)] = z[g.ThetaIndex(i-3)]
			}
			g.LogDensityGradient(z, grad)

			Convey("Then the gradient should be season-symmetric", func() {
				So(grad[4], ShouldAlmostEqual, grad[3], 1e-9)
				So(grad[6], ShouldAlmostEqual, grad[5], 1e-9)
				So(grad[g.ThetaIndex(3)], ShouldAlmostEqual, grad[g.ThetaIndex(0)], 1e-9)
			})
		})
	})
}

func TestGradientMatchesFiniteDifferences(t *testing.T) {
	Convey("Given graphs over small datasets", t, func() {
		base := gridDataset(2, 3, 8.0, 100)
		mixed, err := base.Append(dataset.Record{Season: 3, Episode: 1})
		So(err, ShouldBeNil)

		graphs := map[string]*dataset.Dataset{
			"uniform grid":       base,
			"with missing row":   mixed,
			"single season":      gridDataset(1, 4, 6.5, 25),
			"high vote contrast": gridDataset(2, 2, 9.1, 5000),
		}

		for name, ds := range graphs {
			g, err := bayes.Build(ds)
			So(err, ShouldBeNil)

			Convey("When comparing analytic and numerical gradients for "+name, func() {
				rng := rand.New(rand.NewSource(42))
				for trial := 0; trial < 3; trial++ {
					z := make([]float64, g.Dim())
					for k := range z {
						z[k] = 0.5 * rng.NormFloat64()
					}

					analytic := make([]float64, g.Dim())
					lp := g.LogDensityGradient(z, analytic)
					So(math.IsInf(lp, 0), ShouldBeFalse)

					const h = 1e-6
					for k := 0; k < g.Dim(); k++ {
						zp := append([]float64(nil), z...)
						zm := append([]float64(nil), z...)
						zp[k] += h
						zm[k] -= h
						numeric := (g.LogDensity(zp) - g.LogDensity(zm)) / (2 * h)

						So(analytic[k], ShouldAlmostEqual, numeric, 1e-4*(1+math.Abs(numeric)))
					}
				}
			})
		}
	})
}

func TestLogDensityGradientConsistency(t *testing.T) {
	Convey("Given a graph", t, func() {
		g, err := bayes.Build(gridDataset(3, 2, 7.0, 40))
		So(err, ShouldBeNil)

		Convey("When evaluating with and without gradient", func() {
			z := make([]float64, g.Dim())
			rng := rand.New(rand.NewSource(7))
			for k := range z {
				z[k] = rng.Float64() - 0.5
			}
			grad := make([]float64, g.Dim())

			Convey("Then both paths should agree on the density", func() {
				So(g.LogDensityGradient(z, grad), ShouldAlmostEqual, g.LogDensity(z), 1e-12)
			})
		})
	})
}
