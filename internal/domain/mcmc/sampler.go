// Package mcmc implements the No-U-Turn sampler with dual-averaging
// step-size adaptation and diagonal mass-matrix estimation during
// warmup. It samples any differentiable target expressed on an
// unconstrained scale and reports convergence diagnostics over the
// resulting trace.
package mcmc

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/epiqlabs/epiq/pkg/logger"
)

// Target is the density a Sampler explores. Positions live on the
// unconstrained scale; Constrain maps a position back to the
// model's native parameterization for storage.
type Target interface {
	Dim() int
	LogDensity(z []float64) float64
	LogDensityGradient(z, grad []float64) float64
	Constrain(z []float64) []float64
}

// Defaults mirror common probabilistic-programming settings.
const (
	DefaultDraws        = 2000
	DefaultTune         = 1000
	DefaultChains       = 4
	DefaultTargetAccept = 0.9
	DefaultSeed         = 42
	DefaultMaxTreeDepth = 10

	chainSeedStride = 1_000_003
)

// Sampler runs several independent NUTS chains over a Target.
type Sampler struct {
	draws        int
	tune         int
	chains       int
	targetAccept float64
	seed         int64
	maxTreeDepth int
	log          logger.Logger
}

// New builds a Sampler with the given options applied over defaults.
func New(opts ...Option) *Sampler {
	s := &Sampler{
		draws:        DefaultDraws,
		tune:         DefaultTune,
		chains:       DefaultChains,
		targetAccept: DefaultTargetAccept,
		seed:         DefaultSeed,
		maxTreeDepth: DefaultMaxTreeDepth,
		log:          logger.Get().Named("mcmc"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type chainResult struct {
	samples     [][]float64
	divergences int
	depthHits   int
	stepSize    float64
	acceptRate  float64
}

// Run samples the target and returns the collected trace. Chains run
// in parallel; the first chain error cancels the rest.
func (s *Sampler) Run(ctx context.Context, target Target) (*Trace, error) {
	if target == nil {
		return nil, ErrNilTarget
	}
	dim := target.Dim()
	if dim <= 0 {
		return nil, ErrEmptyTarget
	}
	if s.draws <= 0 {
		return nil, ErrNoDraws
	}

	start := time.Now()
	s.log.Info(ctx, "sampling started",
		logger.Int("dim", dim),
		logger.Int("chains", s.chains),
		logger.Int("draws", s.draws),
		logger.Int("tune", s.tune),
		logger.Float64("target_accept", s.targetAccept),
	)

	results := make([]*chainResult, s.chains)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.chains; i++ {
		g.Go(func() error {
			res, err := s.runChain(gctx, target, i)
			if err != nil {
				return fmt.Errorf("chain %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trace := &Trace{
		dim:         dim,
		chains:      s.chains,
		draws:       s.draws,
		samples:     make([][][]float64, s.chains),
		divergences: make([]int, s.chains),
		depthHits:   make([]int, s.chains),
		stepSizes:   make([]float64, s.chains),
		acceptRates: make([]float64, s.chains),
	}
	totalDiv, totalDepth := 0, 0
	for i, res := range results {
		trace.samples[i] = res.samples
		trace.divergences[i] = res.divergences
		trace.depthHits[i] = res.depthHits
		trace.stepSizes[i] = res.stepSize
		trace.acceptRates[i] = res.acceptRate
		totalDiv += res.divergences
		totalDepth += res.depthHits
	}
	if totalDiv > 0 {
		trace.warnings = append(trace.warnings, Warning{
			Kind:    WarningDivergences,
			Message: fmt.Sprintf("%d divergent transitions after warmup; estimates may be biased", totalDiv),
		})
		s.log.Warn(ctx, "divergent transitions after warmup", logger.Int("count", totalDiv))
	}
	if totalDepth > 0 {
		trace.warnings = append(trace.warnings, Warning{
			Kind:    WarningMaxTreeDepth,
			Message: fmt.Sprintf("%d transitions hit the maximum tree depth of %d", totalDepth, s.maxTreeDepth),
		})
	}

	s.log.Info(ctx, "sampling complete",
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("divergences", totalDiv),
	)
	return trace, nil
}

// runChain executes warmup and sampling for one chain. Seeds are
// spaced so chains draw unrelated streams from the same base seed.
func (s *Sampler) runChain(ctx context.Context, target Target, idx int) (*chainResult, error) {
	rng := rand.New(rand.NewSource(s.seed + chainSeedStride*int64(idx)))
	c, err := newChain(target, rng, s.maxTreeDepth, s.targetAccept)
	if err != nil {
		return nil, err
	}

	res := &chainResult{samples: make([][]float64, 0, s.draws)}
	wf := newWelford(c.dim)
	win1 := s.tune / 2
	win2 := s.tune - s.tune/4
	total := s.tune + s.draws

	acceptSum := 0.0
	for iter := 0; iter < total; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		c.transition()

		if iter < s.tune {
			c.adaptStepSize()
			wf.push(c.z)
			if iter+1 == win1 || iter+1 == win2 {
				c.updateMass(wf)
				wf.reset()
			}
			if iter+1 == s.tune {
				c.finalizeStepSize()
			}
			continue
		}

		if c.diverged {
			res.divergences++
		}
		if c.hitMaxDepth {
			res.depthHits++
		}
		acceptSum += c.acceptStat
		res.samples = append(res.samples, target.Constrain(c.z))
	}

	res.stepSize = c.stepSize
	res.acceptRate = acceptSum / float64(s.draws)
	return res, nil
}
