package mcmc

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/epiqlabs/epiq/pkg/logger"
)

// normalTarget is an independent Gaussian density with known moments.
type normalTarget struct {
	sds []float64
}

func (t *normalTarget) Dim() int { return len(t.sds) }

func (t *normalTarget) LogDensity(z []float64) float64 {
	lp := 0.0
	for k, zk := range z {
		v := t.sds[k] * t.sds[k]
		lp -= 0.5 * zk * zk / v
	}
	return lp
}

func (t *normalTarget) LogDensityGradient(z, grad []float64) float64 {
	lp := 0.0
	for k, zk := range z {
		v := t.sds[k] * t.sds[k]
		lp -= 0.5 * zk * zk / v
		grad[k] = -zk / v
	}
	return lp
}

func (t *normalTarget) Constrain(z []float64) []float64 {
	out := make([]float64, len(z))
	copy(out, z)
	return out
}

func TestSamplerRun(t *testing.T) {
	convey.Convey("Given a sampler over a two-dimensional Gaussian", t, func() {
		_ = logger.Init()
		target := &normalTarget{sds: []float64{1, 2}}
		s := New(WithDraws(1000), WithTune(500), WithChains(2), WithSeed(7))

		convey.Convey("When the sampler runs", func() {
			trace, err := s.Run(context.Background(), target)

			convey.Convey("Then the trace has the requested shape", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(trace.NumChains(), convey.ShouldEqual, 2)
				convey.So(trace.NumDraws(), convey.ShouldEqual, 1000)
				convey.So(trace.Dim(), convey.ShouldEqual, 2)
				convey.So(len(trace.Flatten(0)), convey.ShouldEqual, 2000)
			})

			convey.Convey("Then the posterior moments are recovered", func() {
				convey.So(err, convey.ShouldBeNil)
				for k, want := range []float64{1, 2} {
					mean, sd := meanSD(trace.Flatten(k))
					convey.So(math.Abs(mean), convey.ShouldBeLessThan, 0.25)
					convey.So(math.Abs(sd-want), convey.ShouldBeLessThan, 0.35)
				}
			})

			convey.Convey("Then the run is clean and the step sizes are sane", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(trace.TotalDivergences(), convey.ShouldEqual, 0)
				for c := 0; c < trace.NumChains(); c++ {
					convey.So(trace.StepSizes()[c], convey.ShouldBeGreaterThan, 0)
					convey.So(trace.AcceptRates()[c], convey.ShouldBeGreaterThan, 0.5)
					convey.So(trace.AcceptRates()[c], convey.ShouldBeLessThanOrEqualTo, 1)
				}
			})
		})
	})
}

func TestSamplerDeterminism(t *testing.T) {
	convey.Convey("Given two samplers with the same seed", t, func() {
		_ = logger.Init()
		target := &normalTarget{sds: []float64{1, 1, 1}}
		opts := []Option{WithDraws(100), WithTune(100), WithChains(2), WithSeed(11)}

		first, err1 := New(opts...).Run(context.Background(), target)
		second, err2 := New(opts...).Run(context.Background(), target)

		convey.Convey("Then both traces are identical", func() {
			convey.So(err1, convey.ShouldBeNil)
			convey.So(err2, convey.ShouldBeNil)
			for c := 0; c < first.NumChains(); c++ {
				for _, d := range []int{0, first.NumDraws() - 1} {
					for k := 0; k < first.Dim(); k++ {
						convey.So(first.Value(c, d, k), convey.ShouldEqual, second.Value(c, d, k))
					}
				}
				convey.So(first.StepSizes()[c], convey.ShouldEqual, second.StepSizes()[c])
			}
		})

		convey.Convey("Then a different seed produces a different trace", func() {
			third, err := New(WithDraws(100), WithTune(100), WithChains(2), WithSeed(12)).Run(context.Background(), target)
			convey.So(err, convey.ShouldBeNil)
			convey.So(third.Value(0, 0, 0), convey.ShouldNotEqual, first.Value(0, 0, 0))
		})
	})
}

func TestSamplerValidation(t *testing.T) {
	convey.Convey("Given invalid sampler inputs", t, func() {
		_ = logger.Init()

		convey.Convey("When the target is nil", func() {
			trace, err := New().Run(context.Background(), nil)
			convey.So(trace, convey.ShouldBeNil)
			convey.So(errors.Is(err, ErrNilTarget), convey.ShouldBeTrue)
		})

		convey.Convey("When the target has no parameters", func() {
			trace, err := New().Run(context.Background(), &normalTarget{})
			convey.So(trace, convey.ShouldBeNil)
			convey.So(errors.Is(err, ErrEmptyTarget), convey.ShouldBeTrue)
		})

		convey.Convey("When options carry invalid values they are ignored", func() {
			s := New(WithDraws(-1), WithChains(0), WithTargetAccept(2))
			convey.So(s.draws, convey.ShouldEqual, DefaultDraws)
			convey.So(s.chains, convey.ShouldEqual, DefaultChains)
			convey.So(s.targetAccept, convey.ShouldEqual, DefaultTargetAccept)
		})
	})
}

func TestSamplerCancellation(t *testing.T) {
	convey.Convey("Given a cancelled context", t, func() {
		_ = logger.Init()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		trace, err := New(WithChains(1)).Run(ctx, &normalTarget{sds: []float64{1}})

		convey.Convey("Then the run stops with the context error", func() {
			convey.So(trace, convey.ShouldBeNil)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})
	})
}

func TestSamplerMaxTreeDepth(t *testing.T) {
	convey.Convey("Given a sampler capped at tree depth one", t, func() {
		_ = logger.Init()
		target := &normalTarget{sds: []float64{1, 1}}
		s := New(WithDraws(50), WithTune(50), WithChains(1), WithSeed(3), WithMaxTreeDepth(1))

		trace, err := s.Run(context.Background(), target)

		convey.Convey("Then the depth cap is reported", func() {
			convey.So(err, convey.ShouldBeNil)
			found := false
			for _, w := range trace.Warnings() {
				if w.Kind == WarningMaxTreeDepth {
					found = true
				}
			}
			convey.So(found, convey.ShouldBeTrue)
		})
	})
}

func TestLeapfrogReversibility(t *testing.T) {
	convey.Convey("Given a chain mid-trajectory", t, func() {
		_ = logger.Init()
		target := &normalTarget{sds: []float64{1, 2}}
		rng := rand.New(rand.NewSource(5))
		c, err := newChain(target, rng, DefaultMaxTreeDepth, DefaultTargetAccept)
		convey.So(err, convey.ShouldBeNil)

		z0 := cloneVec(c.z)
		p0 := c.sampleMomentum()
		g0 := cloneVec(c.grad)
		h0 := c.logp - c.kinetic(p0)

		convey.Convey("When a step is taken and then reversed", func() {
			z, p, g := cloneVec(z0), cloneVec(p0), cloneVec(g0)
			lp := c.leapfrog(z, p, g, 0.1)
			h1 := lp - c.kinetic(p)
			_ = c.leapfrog(z, p, g, -0.1)

			convey.Convey("Then the starting point is recovered", func() {
				for k := range z0 {
					convey.So(z[k], convey.ShouldAlmostEqual, z0[k], 1e-9)
					convey.So(p[k], convey.ShouldAlmostEqual, p0[k], 1e-9)
				}
			})

			convey.Convey("Then the energy drift stays small", func() {
				convey.So(math.Abs(h1-h0), convey.ShouldBeLessThan, 0.05)
			})
		})
	})
}

func TestWelford(t *testing.T) {
	convey.Convey("Given a stream of values", t, func() {
		vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
		w := newWelford(1)
		for _, v := range vals {
			w.push([]float64{v})
		}

		convey.Convey("Then the running moments match the direct ones", func() {
			mean, sd := meanSD(vals)
			convey.So(w.n, convey.ShouldEqual, len(vals))
			convey.So(w.mean[0], convey.ShouldAlmostEqual, mean, 1e-12)
			convey.So(w.m2[0]/float64(len(vals)-1), convey.ShouldAlmostEqual, sd*sd, 1e-12)
		})

		convey.Convey("Then reset clears the accumulator", func() {
			w.reset()
			convey.So(w.n, convey.ShouldEqual, 0)
			convey.So(w.mean[0], convey.ShouldEqual, 0)
			convey.So(w.m2[0], convey.ShouldEqual, 0)
		})
	})
}
