// Package bayes builds the hierarchical episode-quality model.
//
// The model pools episodes within seasons and seasons within the show:
//
//	mu_0     ~ Uniform(lower, upper)
//	sigma_mu ~ HalfCauchy(2)
//	tau_0    ~ HalfCauchy(2)
//	mu_s[j]  ~ TruncatedNormal(mu_0, sigma_mu, lower, upper)
//	tau_s[j] ~ HalfCauchy(tau_0)
//	theta[i] ~ TruncatedNormal(mu_s[code(i)], tau_s[code(i)], lower, upper)
//	rating_i ~ TruncatedNormal(theta[i], 1/sqrt(votes_i), lower, upper)
//
// The likelihood line is emitted only for rows with an observed rating,
// so unrated episodes borrow strength from their season without pulling
// the estimates anywhere.
package bayes

import (
	"fmt"
	"math"

	"github.com/epiqlabs/epiq/internal/domain/dataset"
)

// Default rating bounds. Ratings live on a 0..10 scale; the half-point
// margin keeps boundary observations off the exact truncation edge.
const (
	DefaultLower = -0.5
	DefaultUpper = 10.5
)

// Fixed parameter indices in the unconstrained vector. Season and
// episode blocks follow, see MuSIndex/TauSIndex/ThetaIndex.
const (
	idxMu0     = 0
	idxSigmaMu = 1
	idxTau0    = 2
	fixedDim   = 3
)

// Bounds is the closed rating interval used for every truncation.
type Bounds struct {
	Lower float64
	Upper float64
}

// Width returns Upper - Lower.
func (b Bounds) Width() float64 { return b.Upper - b.Lower }

// observation is one observed rating with its noise scale.
type observation struct {
	row    int
	rating float64
	sd     float64
}

// Graph is an immutable model bound to one dataset snapshot. It exposes
// the joint log-density and gradient over an unconstrained vector so
// gradient-based samplers can walk it. Safe for concurrent use.
type Graph struct {
	bounds   Bounds
	codes    []int
	obs      []observation
	nSeasons int
	nRows    int
}

// Build assembles the model graph from a dataset snapshot.
func Build(ds *dataset.Dataset, opts ...Option) (*Graph, error) {
	var o options
	o.bounds = Bounds{Lower: DefaultLower, Upper: DefaultUpper}
	for _, opt := range opts {
		opt(&o)
	}

	if ds == nil || ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	if o.bounds.Width() <= 0 {
		return nil, fmt.Errorf("%w: [%g, %g]", ErrInvalidBounds, o.bounds.Lower, o.bounds.Upper)
	}

	g := &Graph{
		bounds:   o.bounds,
		codes:    ds.Codes(),
		nSeasons: ds.SeasonCount(),
		nRows:    ds.Len(),
	}
	if g.nSeasons == 0 {
		return nil, ErrNoSeasons
	}

	for i := 0; i < ds.Len(); i++ {
		rec := ds.At(i)
		if rec.Votes < 1 {
			return nil, fmt.Errorf("%w: row %d has %d votes", ErrInvalidVotes, i, rec.Votes)
		}
		if !rec.Observed {
			continue
		}
		g.obs = append(g.obs, observation{
			row:    i,
			rating: rec.Rating,
			sd:     1 / math.Sqrt(float64(rec.Votes)),
		})
	}

	return g, nil
}

// Dim returns the dimension of the unconstrained parameter vector.
func (g *Graph) Dim() int { return fixedDim + 2*g.nSeasons + g.nRows }

// NumSeasons returns the number of season-level parameter pairs.
func (g *Graph) NumSeasons() int { return g.nSeasons }

// NumEpisodes returns the number of episode-level latent parameters.
func (g *Graph) NumEpisodes() int { return g.nRows }

// NumObserved returns the number of likelihood terms.
func (g *Graph) NumObserved() int { return len(g.obs) }

// Bounds returns the rating interval of every truncated distribution.
func (g *Graph) Bounds() Bounds { return g.bounds }

// Mu0Index, SigmaMuIndex and Tau0Index locate the show-level
// hyperparameters in the parameter vector.
func (g *Graph) Mu0Index() int     { return idxMu0 }
func (g *Graph) SigmaMuIndex() int { return idxSigmaMu }
func (g *Graph) Tau0Index() int    { return idxTau0 }

// MuSIndex and TauSIndex locate season j's mean and spread.
func (g *Graph) MuSIndex(j int) int  { return fixedDim + j }
func (g *Graph) TauSIndex(j int) int { return fixedDim + g.nSeasons + j }

// ThetaIndex returns the position of episode i's latent quality in the
// parameter vector. Callers use it to slice traces by episode.
func (g *Graph) ThetaIndex(i int) int { return fixedDim + 2*g.nSeasons + i }

// ParamName returns a stable diagnostic name for parameter k.
func (g *Graph) ParamName(k int) string {
	switch {
	case k == idxMu0:
		return "mu_0"
	case k == idxSigmaMu:
		return "sigma_mu"
	case k == idxTau0:
		return "tau_0"
	case k < fixedDim+g.nSeasons:
		return fmt.Sprintf("mu_s[%d]", k-fixedDim)
	case k < fixedDim+2*g.nSeasons:
		return fmt.Sprintf("tau_s[%d]", k-fixedDim-g.nSeasons)
	default:
		return fmt.Sprintf("theta[%d]", k-fixedDim-2*g.nSeasons)
	}
}

// Constrain maps an unconstrained vector onto the model's natural scale:
// bounded parameters through a scaled sigmoid, positive ones through exp.
func (g *Graph) Constrain(z []float64) []float64 {
	x := make([]float64, len(z))
	g.ConstrainInto(z, x)
	return x
}

// ConstrainInto is Constrain without the allocation.
func (g *Graph) ConstrainInto(z, x []float64) {
	lo, w := g.bounds.Lower, g.bounds.Width()
	x[idxMu0] = lo + w*sigmoid(z[idxMu0])
	x[idxSigmaMu] = math.Exp(z[idxSigmaMu])
	x[idxTau0] = math.Exp(z[idxTau0])
	for j := 0; j < g.nSeasons; j++ {
		x[g.MuSIndex(j)] = lo + w*sigmoid(z[g.MuSIndex(j)])
		x[g.TauSIndex(j)] = math.Exp(z[g.TauSIndex(j)])
	}
	for i := 0; i < g.nRows; i++ {
		x[g.ThetaIndex(i)] = lo + w*sigmoid(z[g.ThetaIndex(i)])
	}
}
