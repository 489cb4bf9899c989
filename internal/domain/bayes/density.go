package bayes

import (
	"math"
)

// Scale of the HalfCauchy hyperpriors on sigma_mu and tau_0.
const hyperSpreadScale = 2.0

var (
	halfLog2Pi = 0.5 * math.Log(2*math.Pi) //nolint:gochecknoglobals // precomputed constant
	log2OverPi = math.Log(2 / math.Pi)     //nolint:gochecknoglobals // precomputed constant
	sqrt2Pi    = math.Sqrt(2 * math.Pi)    //nolint:gochecknoglobals // precomputed constant
)

// LogDensity evaluates the joint log-density (priors, likelihood, and
// transform Jacobians) at an unconstrained point. Non-finite results
// mean the point is out of support; samplers treat them as rejections.
func (g *Graph) LogDensity(z []float64) float64 {
	return g.logDensity(z, nil)
}

// LogDensityGradient evaluates the log-density and writes its gradient
// with respect to the unconstrained coordinates into grad.
func (g *Graph) LogDensityGradient(z, grad []float64) float64 {
	return g.logDensity(z, grad)
}

//nolint:funlen,gocognit // single pass over every model term keeps the math auditable
func (g *Graph) logDensity(z, grad []float64) float64 {
	lo, up := g.bounds.Lower, g.bounds.Upper
	w := g.bounds.Width()

	x := make([]float64, g.Dim())
	g.ConstrainInto(z, x)
	if grad != nil {
		for k := range grad {
			grad[k] = 0
		}
	}

	mu0 := x[idxMu0]
	sigmaMu := x[idxSigmaMu]
	tau0 := x[idxTau0]

	// mu_0 ~ Uniform(lo, up); the transform keeps it in support.
	logp := -math.Log(w)

	// sigma_mu, tau_0 ~ HalfCauchy(hyperSpreadScale)
	logp += halfCauchyLogPDF(sigmaMu, hyperSpreadScale)
	logp += halfCauchyLogPDF(tau0, hyperSpreadScale)
	if grad != nil {
		grad[idxSigmaMu] += -2 * sigmaMu / (hyperSpreadScale*hyperSpreadScale + sigmaMu*sigmaMu)
		grad[idxTau0] += -2 * tau0 / (hyperSpreadScale*hyperSpreadScale + tau0*tau0)
	}

	// mu_s[j] ~ TruncatedNormal(mu_0, sigma_mu, lo, up); the truncation
	// normalizer depends on mu_0 and sigma_mu, so it is shared by all
	// seasons and differentiated against both.
	aMu := (lo - mu0) / sigmaMu
	bMu := (up - mu0) / sigmaMu
	logZMu := truncLogZ(aMu, bMu)
	if math.IsInf(logZMu, -1) {
		return math.Inf(-1)
	}
	zMu := math.Exp(logZMu)
	phiAMu := normPDF(aMu)
	phiBMu := normPDF(bMu)

	for j := 0; j < g.nSeasons; j++ {
		muS := x[g.MuSIndex(j)]
		d := (muS - mu0) / sigmaMu
		logp += -math.Log(sigmaMu) - halfLog2Pi - 0.5*d*d - logZMu
		if grad != nil {
			grad[g.MuSIndex(j)] += -d / sigmaMu
			grad[idxMu0] += d/sigmaMu - (phiAMu-phiBMu)/(sigmaMu*zMu)
			grad[idxSigmaMu] += -1/sigmaMu + d*d/sigmaMu - (aMu*phiAMu-bMu*phiBMu)/(sigmaMu*zMu)
		}
	}

	// tau_s[j] ~ HalfCauchy(tau_0); tau_0 is itself a parameter, so the
	// scale term contributes to its gradient.
	for j := 0; j < g.nSeasons; j++ {
		tauS := x[g.TauSIndex(j)]
		den := tau0*tau0 + tauS*tauS
		logp += log2OverPi + math.Log(tau0) - math.Log(den)
		if grad != nil {
			grad[g.TauSIndex(j)] += -2 * tauS / den
			grad[idxTau0] += 1/tau0 - 2*tau0/den
		}
	}

	// theta[i] ~ TruncatedNormal(mu_s[c], tau_s[c], lo, up); the
	// normalizer is shared per season, precompute it once.
	logZS := make([]float64, g.nSeasons)
	gradZMuS := make([]float64, g.nSeasons)
	gradZTauS := make([]float64, g.nSeasons)
	for j := 0; j < g.nSeasons; j++ {
		muS := x[g.MuSIndex(j)]
		tauS := x[g.TauSIndex(j)]
		a := (lo - muS) / tauS
		b := (up - muS) / tauS
		logZS[j] = truncLogZ(a, b)
		if math.IsInf(logZS[j], -1) {
			return math.Inf(-1)
		}
		zj := math.Exp(logZS[j])
		phiA := normPDF(a)
		phiB := normPDF(b)
		gradZMuS[j] = (phiA - phiB) / (tauS * zj)
		gradZTauS[j] = (a*phiA - b*phiB) / (tauS * zj)
	}

	for i := 0; i < g.nRows; i++ {
		c := g.codes[i]
		muS := x[g.MuSIndex(c)]
		tauS := x[g.TauSIndex(c)]
		th := x[g.ThetaIndex(i)]
		d := (th - muS) / tauS
		logp += -math.Log(tauS) - halfLog2Pi - 0.5*d*d - logZS[c]
		if grad != nil {
			grad[g.ThetaIndex(i)] += -d / tauS
			grad[g.MuSIndex(c)] += d/tauS - gradZMuS[c]
			grad[g.TauSIndex(c)] += -1/tauS + d*d/tauS - gradZTauS[c]
		}
	}

	// rating_i ~ TruncatedNormal(theta[i], sd_i, lo, up) for observed
	// rows; here theta is the location, so its gradient picks up the
	// normalizer term.
	for _, o := range g.obs {
		th := x[g.ThetaIndex(o.row)]
		a := (lo - th) / o.sd
		b := (up - th) / o.sd
		logZ := truncLogZ(a, b)
		if math.IsInf(logZ, -1) {
			return math.Inf(-1)
		}
		d := (o.rating - th) / o.sd
		logp += -math.Log(o.sd) - halfLog2Pi - 0.5*d*d - logZ
		if grad != nil {
			zo := math.Exp(logZ)
			grad[g.ThetaIndex(o.row)] += d/o.sd - (normPDF(a)-normPDF(b))/(o.sd*zo)
		}
	}

	// Transform Jacobians, plus the chain rule from constrained to
	// unconstrained coordinates.
	for k := 0; k < g.Dim(); k++ {
		if g.isPositiveParam(k) {
			logp += z[k]
			if grad != nil {
				grad[k] = grad[k]*x[k] + 1
			}
			continue
		}
		s := sigmoid(z[k])
		logp += math.Log(w) + logSigmoid(z[k]) + logSigmoid(-z[k])
		if grad != nil {
			grad[k] = grad[k]*w*s*(1-s) + (1 - 2*s)
		}
	}

	if math.IsNaN(logp) {
		return math.Inf(-1)
	}
	return logp
}

// isPositiveParam reports whether parameter k lives on (0, inf) and is
// therefore log-transformed; the rest are interval-bounded.
func (g *Graph) isPositiveParam(k int) bool {
	if k == idxSigmaMu || k == idxTau0 {
		return true
	}
	return k >= fixedDim+g.nSeasons && k < fixedDim+2*g.nSeasons
}

// sigmoid is the standard logistic function, computed without overflow.
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// logSigmoid computes log(sigmoid(z)) stably for large |z|.
func logSigmoid(z float64) float64 {
	if z >= 0 {
		return -math.Log1p(math.Exp(-z))
	}
	return z - math.Log1p(math.Exp(z))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

// normCDF is the standard normal distribution function via erfc, which
// stays accurate far into the lower tail.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// truncLogZ returns log(Phi(b) - Phi(a)) for a < b. When both endpoints
// sit in the same tail the complementary form avoids cancellation.
func truncLogZ(a, b float64) float64 {
	switch {
	case a > 0:
		return math.Log(0.5 * (math.Erfc(a/math.Sqrt2) - math.Erfc(b/math.Sqrt2)))
	case b < 0:
		return math.Log(0.5 * (math.Erfc(-b/math.Sqrt2) - math.Erfc(-a/math.Sqrt2)))
	default:
		return math.Log(normCDF(b) - normCDF(a))
	}
}

// halfCauchyLogPDF is the log-density of a HalfCauchy(beta) at x > 0.
func halfCauchyLogPDF(x, beta float64) float64 {
	return log2OverPi + math.Log(beta) - math.Log(beta*beta+x*x)
}
