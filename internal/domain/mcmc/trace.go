package mcmc

// WarningKind classifies sampler diagnostics.
type WarningKind string

// Diagnostic warning kinds. All of them are advisory; a fit with
// warnings is still a fit.
const (
	WarningDivergences  WarningKind = "divergences"
	WarningMaxTreeDepth WarningKind = "max-tree-depth"
	WarningHighRHat     WarningKind = "high-r-hat"
	WarningLowESS       WarningKind = "low-ess"
)

// Warning is a non-fatal sampling diagnostic.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// Trace holds posterior draws on the constrained scale. It is read-only
// after sampling: every accessor either copies or documents the view as
// immutable.
type Trace struct {
	dim    int
	chains int
	draws  int

	// samples is indexed [chain][draw][param].
	samples [][][]float64

	divergences []int
	depthHits   []int
	stepSizes   []float64
	acceptRates []float64
	warnings    []Warning
}

// NumChains returns the number of chains.
func (t *Trace) NumChains() int { return t.chains }

// NumDraws returns the retained draws per chain.
func (t *Trace) NumDraws() int { return t.draws }

// Dim returns the number of parameters per draw.
func (t *Trace) Dim() int { return t.dim }

// Value returns parameter k of draw d in chain c.
func (t *Trace) Value(c, d, k int) float64 { return t.samples[c][d][k] }

// ChainValues returns parameter k's series for one chain, in draw order.
func (t *Trace) ChainValues(c, k int) []float64 {
	out := make([]float64, t.draws)
	for d := 0; d < t.draws; d++ {
		out[d] = t.samples[c][d][k]
	}
	return out
}

// Flatten returns parameter k's draws pooled across chains, chain-major.
// Two calls on the same trace always return the same values.
func (t *Trace) Flatten(k int) []float64 {
	out := make([]float64, 0, t.chains*t.draws)
	for c := 0; c < t.chains; c++ {
		for d := 0; d < t.draws; d++ {
			out = append(out, t.samples[c][d][k])
		}
	}
	return out
}

// Divergences returns the post-warmup divergent transition count per chain.
func (t *Trace) Divergences() []int {
	out := make([]int, len(t.divergences))
	copy(out, t.divergences)
	return out
}

// TotalDivergences sums divergent transitions across chains.
func (t *Trace) TotalDivergences() int {
	n := 0
	for _, d := range t.divergences {
		n += d
	}
	return n
}

// StepSizes returns the adapted leapfrog step size per chain.
func (t *Trace) StepSizes() []float64 {
	out := make([]float64, len(t.stepSizes))
	copy(out, t.stepSizes)
	return out
}

// AcceptRates returns the mean post-warmup acceptance statistic per chain.
func (t *Trace) AcceptRates() []float64 {
	out := make([]float64, len(t.acceptRates))
	copy(out, t.acceptRates)
	return out
}

// Warnings returns the diagnostics attached while sampling.
func (t *Trace) Warnings() []Warning {
	out := make([]Warning, len(t.warnings))
	copy(out, t.warnings)
	return out
}
