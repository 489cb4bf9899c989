package mcmc

import (
	"math"
	"math/rand"
)

// Trajectory and adaptation constants (Hoffman & Gelman, 2014).
const (
	// deltaMax is the joint log-density gap beyond which a leapfrog
	// trajectory counts as divergent.
	deltaMax = 1000.0

	// Dual-averaging parameters.
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75

	// Starting points are jittered uniformly in [-initJitter, initJitter]
	// on the unconstrained scale.
	initJitter     = 1.0
	maxInitRetries = 100

	// findEpsMaxSteps bounds the doubling search for the initial step size.
	findEpsMaxSteps = 100

	// Diagonal mass regularization toward a small variance, weighted as
	// massRegWeight pseudo-observations.
	massRegWeight   = 5.0
	massRegVariance = 1e-3
	massMinSamples  = 10
)

// chain is the state of one NUTS chain. Chains never share state, so a
// chain is free to cache whatever it likes.
type chain struct {
	target       Target
	rng          *rand.Rand
	dim          int
	maxDepth     int
	targetAccept float64

	// Current position on the unconstrained scale.
	z    []float64
	grad []float64
	logp float64

	// invMass holds the estimated posterior variances; kinetic energy
	// is 0.5 * sum(p^2 * invMass).
	invMass []float64

	// Dual-averaging state.
	stepSize  float64
	mu        float64
	logEpsBar float64
	hBar      float64
	adaptIter int

	// Per-transition outcomes.
	diverged    bool
	hitMaxDepth bool
	acceptStat  float64
}

func newChain(target Target, rng *rand.Rand, maxDepth int, targetAccept float64) (*chain, error) {
	dim := target.Dim()
	c := &chain{
		target:       target,
		rng:          rng,
		dim:          dim,
		maxDepth:     maxDepth,
		targetAccept: targetAccept,
		z:            make([]float64, dim),
		grad:         make([]float64, dim),
		invMass:      make([]float64, dim),
	}
	for k := range c.invMass {
		c.invMass[k] = 1
	}

	found := false
	for try := 0; try < maxInitRetries; try++ {
		for k := range c.z {
			c.z[k] = initJitter * (2*rng.Float64() - 1)
		}
		c.logp = target.LogDensityGradient(c.z, c.grad)
		if finite(c.logp) && allFinite(c.grad) {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrBadInitial
	}

	c.stepSize = c.findReasonableEpsilon()
	c.resetStepSizeAdaptation()
	return c, nil
}

func (c *chain) resetStepSizeAdaptation() {
	c.mu = math.Log(10 * c.stepSize)
	c.logEpsBar = 0
	c.hBar = 0
	c.adaptIter = 0
}

// sampleMomentum draws p ~ N(0, M) for the diagonal metric.
func (c *chain) sampleMomentum() []float64 {
	p := make([]float64, c.dim)
	for k := range p {
		p[k] = c.rng.NormFloat64() / math.Sqrt(c.invMass[k])
	}
	return p
}

func (c *chain) kinetic(p []float64) float64 {
	sum := 0.0
	for k, pk := range p {
		sum += pk * pk * c.invMass[k]
	}
	return 0.5 * sum
}

// leapfrog advances (z, p) in place by one step of size eps and returns
// the new log-density. The trailing half-kick is skipped off-support,
// where the gradient is meaningless.
func (c *chain) leapfrog(z, p, grad []float64, eps float64) float64 {
	for k := range p {
		p[k] += 0.5 * eps * grad[k]
	}
	for k := range z {
		z[k] += eps * c.invMass[k] * p[k]
	}
	logp := c.target.LogDensityGradient(z, grad)
	if !finite(logp) {
		return logp
	}
	for k := range p {
		p[k] += 0.5 * eps * grad[k]
	}
	return logp
}

// findReasonableEpsilon doubles or halves the step size until one
// leapfrog step crosses 50% acceptance.
func (c *chain) findReasonableEpsilon() float64 {
	eps := 1.0
	p0 := c.sampleMomentum()
	logJoint0 := c.logp - c.kinetic(p0)

	step := func(eps float64) float64 {
		z := cloneVec(c.z)
		p := cloneVec(p0)
		grad := cloneVec(c.grad)
		lp := c.leapfrog(z, p, grad, eps)
		return lp - c.kinetic(p) - logJoint0
	}

	diff := step(eps)
	a := 1.0
	if !(diff > -math.Ln2) {
		a = -1.0
	}
	for i := 0; i < findEpsMaxSteps && a*diff > -a*math.Ln2; i++ {
		eps *= math.Pow(2, a)
		diff = step(eps)
	}
	return eps
}

// treeState carries a subtree's edges and its proposal.
type treeState struct {
	zMinus, pMinus, gradMinus []float64
	zPlus, pPlus, gradPlus    []float64
	zPrime, gradPrime         []float64
	logpPrime                 float64
	n                         int
	s                         bool
	alpha                     float64
	nAlpha                    int
}

// buildTree doubles the trajectory in direction dir. The slice variable
// enters as logu; logJoint0 anchors the acceptance statistic.
func (c *chain) buildTree(z, p, grad []float64, logu, dir float64, depth int, eps, logJoint0 float64) treeState {
	if depth == 0 {
		z1 := cloneVec(z)
		p1 := cloneVec(p)
		g1 := cloneVec(grad)
		lp := c.leapfrog(z1, p1, g1, dir*eps)
		logJoint := lp - c.kinetic(p1)

		n := 0
		if logu <= logJoint {
			n = 1
		}
		s := logu < deltaMax+logJoint
		if !s {
			c.diverged = true
		}
		alpha := math.Exp(math.Min(0, logJoint-logJoint0))
		if math.IsNaN(alpha) {
			alpha = 0
		}
		return treeState{
			zMinus: z1, pMinus: p1, gradMinus: g1,
			zPlus: z1, pPlus: p1, gradPlus: g1,
			zPrime: z1, gradPrime: g1, logpPrime: lp,
			n: n, s: s, alpha: alpha, nAlpha: 1,
		}
	}

	t1 := c.buildTree(z, p, grad, logu, dir, depth-1, eps, logJoint0)
	if !t1.s {
		return t1
	}

	var t2 treeState
	if dir < 0 {
		t2 = c.buildTree(t1.zMinus, t1.pMinus, t1.gradMinus, logu, dir, depth-1, eps, logJoint0)
		t1.zMinus, t1.pMinus, t1.gradMinus = t2.zMinus, t2.pMinus, t2.gradMinus
	} else {
		t2 = c.buildTree(t1.zPlus, t1.pPlus, t1.gradPlus, logu, dir, depth-1, eps, logJoint0)
		t1.zPlus, t1.pPlus, t1.gradPlus = t2.zPlus, t2.pPlus, t2.gradPlus
	}
	if t2.s && t2.n > 0 && c.rng.Float64() < float64(t2.n)/float64(t1.n+t2.n) {
		t1.zPrime, t1.gradPrime, t1.logpPrime = t2.zPrime, t2.gradPrime, t2.logpPrime
	}
	t1.n += t2.n
	t1.alpha += t2.alpha
	t1.nAlpha += t2.nAlpha
	t1.s = t2.s && c.noUTurn(t1.zMinus, t1.zPlus, t1.pMinus, t1.pPlus)
	return t1
}

// noUTurn checks the generalized u-turn criterion across the metric.
func (c *chain) noUTurn(zMinus, zPlus, pMinus, pPlus []float64) bool {
	forward, backward := 0.0, 0.0
	for k := range zMinus {
		d := zPlus[k] - zMinus[k]
		forward += d * c.invMass[k] * pPlus[k]
		backward += d * c.invMass[k] * pMinus[k]
	}
	return forward >= 0 && backward >= 0
}

// transition advances the chain by one NUTS draw.
func (c *chain) transition() {
	c.diverged = false
	c.hitMaxDepth = false

	p0 := c.sampleMomentum()
	logJoint0 := c.logp - c.kinetic(p0)
	logu := logJoint0 - c.rng.ExpFloat64()

	zMinus, pMinus, gradMinus := cloneVec(c.z), cloneVec(p0), cloneVec(c.grad)
	zPlus, pPlus, gradPlus := cloneVec(c.z), cloneVec(p0), cloneVec(c.grad)

	n := 1
	s := true
	alphaSum := 0.0
	nAlpha := 0
	depth := 0

	for s {
		if depth >= c.maxDepth {
			c.hitMaxDepth = true
			break
		}
		dir := 1.0
		if c.rng.Float64() < 0.5 {
			dir = -1.0
		}

		var t treeState
		if dir < 0 {
			t = c.buildTree(zMinus, pMinus, gradMinus, logu, dir, depth, c.stepSize, logJoint0)
			zMinus, pMinus, gradMinus = t.zMinus, t.pMinus, t.gradMinus
		} else {
			t = c.buildTree(zPlus, pPlus, gradPlus, logu, dir, depth, c.stepSize, logJoint0)
			zPlus, pPlus, gradPlus = t.zPlus, t.pPlus, t.gradPlus
		}

		if t.s && t.n > 0 && c.rng.Float64() < float64(t.n)/float64(n) {
			copy(c.z, t.zPrime)
			copy(c.grad, t.gradPrime)
			c.logp = t.logpPrime
		}
		n += t.n
		alphaSum += t.alpha
		nAlpha += t.nAlpha
		s = t.s && c.noUTurn(zMinus, zPlus, pMinus, pPlus)
		depth++
	}

	if nAlpha > 0 {
		c.acceptStat = alphaSum / float64(nAlpha)
	} else {
		c.acceptStat = 0
	}
}

// adaptStepSize runs one dual-averaging update toward targetAccept.
func (c *chain) adaptStepSize() {
	c.adaptIter++
	m := float64(c.adaptIter)
	w := 1 / (m + daT0)
	c.hBar = (1-w)*c.hBar + w*(c.targetAccept-c.acceptStat)
	logEps := c.mu - math.Sqrt(m)/daGamma*c.hBar
	c.stepSize = math.Exp(logEps)
	eta := math.Pow(m, -daKappa)
	c.logEpsBar = eta*logEps + (1-eta)*c.logEpsBar
}

// finalizeStepSize freezes the averaged step size for sampling.
func (c *chain) finalizeStepSize() {
	if c.adaptIter > 0 {
		c.stepSize = math.Exp(c.logEpsBar)
	}
}

// updateMass swaps in the regularized variance estimate and retunes the
// step size for the new metric.
func (c *chain) updateMass(w *welford) {
	if w.n < massMinSamples {
		return
	}
	nf := float64(w.n)
	for k := range c.invMass {
		v := w.m2[k] / (nf - 1)
		c.invMass[k] = nf/(nf+massRegWeight)*v + massRegVariance*(massRegWeight/(nf+massRegWeight))
	}
	c.stepSize = c.findReasonableEpsilon()
	c.resetStepSizeAdaptation()
}

// welford accumulates running per-coordinate variance.
type welford struct {
	n    int
	mean []float64
	m2   []float64
}

func newWelford(dim int) *welford {
	return &welford{mean: make([]float64, dim), m2: make([]float64, dim)}
}

func (w *welford) push(z []float64) {
	w.n++
	for k, zk := range z {
		d := zk - w.mean[k]
		w.mean[k] += d / float64(w.n)
		w.m2[k] += d * (zk - w.mean[k])
	}
}

func (w *welford) reset() {
	w.n = 0
	for k := range w.mean {
		w.mean[k] = 0
		w.m2[k] = 0
	}
}

func cloneVec(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}
